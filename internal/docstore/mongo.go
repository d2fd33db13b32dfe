// internal/docstore/mongo.go
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/config"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

// MongoStore is the MongoDB-backed Store.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *logging.Logger

	requests  *mongo.Collection
	resources *mongo.Collection
	datasets  *mongo.Collection
	assets    *mongo.Collection
	cards     *mongo.Collection
	chats     *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to MongoDB and ensures indexes.
func NewMongoStore(ctx context.Context, cfg config.MongoConfig, logger *logging.Logger) (*MongoStore, error) {
	if !cfg.URI.IsSet() {
		return nil, fmt.Errorf("mongo uri is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout.Duration())
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI.Value()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:    client,
		db:        db,
		logger:    logger,
		requests:  db.Collection("requests"),
		resources: db.Collection("resources"),
		datasets:  db.Collection("datasets"),
		assets:    db.Collection("assets"),
		cards:     db.Collection("cards"),
		chats:     db.Collection("chats"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	logger.Info(ctx, "connected to mongo", zap.String("database", cfg.Database))
	return s, nil
}

// Database exposes the underlying database so the GridFS blob store can
// share the connection.
func (s *MongoStore) Database() *mongo.Database {
	return s.db
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)

	if _, err := s.requests.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "request_id", Value: 1}},
		Options: unique,
	}); err != nil {
		return fmt.Errorf("requests index: %w", err)
	}

	if _, err := s.resources.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "request_id", Value: 1}, {Key: "url", Value: 1}},
			Options: unique,
		},
		{Keys: bson.D{{Key: "request_id", Value: 1}, {Key: "query", Value: 1}, {Key: "modality", Value: 1}}},
		{Keys: bson.D{{Key: "request_id", Value: 1}, {Key: "status", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("resources indexes: %w", err)
	}

	if _, err := s.datasets.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "dataset_id", Value: 1}},
		Options: unique,
	}); err != nil {
		return fmt.Errorf("datasets index: %w", err)
	}

	if _, err := s.assets.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "dataset_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("assets index: %w", err)
	}

	if _, err := s.cards.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "dataset_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("cards index: %w", err)
	}

	if _, err := s.chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}},
		Options: unique,
	}); err != nil {
		return fmt.Errorf("chats index: %w", err)
	}

	return nil
}

func (s *MongoStore) UpsertRequest(ctx context.Context, req *Request) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"query":      req.Query,
			"plan":       req.Plan,
			"persist":    req.Persist,
			"status":     req.Status,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err := s.requests.UpdateOne(ctx,
		bson.M{"request_id": req.RequestID},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert request %s: %w", req.RequestID, err)
	}
	return nil
}

func (s *MongoStore) GetRequest(ctx context.Context, requestID string) (*Request, error) {
	var req Request
	err := s.requests.FindOne(ctx, bson.M{"request_id": requestID}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request %s: %w", requestID, err)
	}
	return &req, nil
}

func (s *MongoStore) ListRequests(ctx context.Context) ([]Request, error) {
	cur, err := s.requests.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	var out []Request
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode requests: %w", err)
	}
	return out, nil
}

func (s *MongoStore) updateRequest(ctx context.Context, requestID string, set bson.M) error {
	set["updated_at"] = time.Now().UTC()
	result, err := s.requests.UpdateOne(ctx, bson.M{"request_id": requestID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update request %s: %w", requestID, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SetRequestStatus(ctx context.Context, requestID string, status RequestStatus) error {
	return s.updateRequest(ctx, requestID, bson.M{"status": status})
}

func (s *MongoStore) SetRequestPersist(ctx context.Context, requestID string, persist bool) error {
	return s.updateRequest(ctx, requestID, bson.M{"persist": persist})
}

func (s *MongoStore) DeleteRequest(ctx context.Context, requestID string) error {
	result, err := s.requests.DeleteOne(ctx, bson.M{"request_id": requestID})
	if err != nil {
		return fmt.Errorf("failed to delete request %s: %w", requestID, err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := s.resources.DeleteMany(ctx, bson.M{"request_id": requestID}); err != nil {
		return fmt.Errorf("failed to delete resources for %s: %w", requestID, err)
	}
	return nil
}

func (s *MongoStore) UpsertResource(ctx context.Context, res *Resource) error {
	now := time.Now().UTC()
	set := bson.M{
		"query":      res.Query,
		"modality":   res.Modality,
		"updated_at": now,
	}
	if res.Class != "" {
		set["class"] = res.Class
	}
	if res.Title != "" {
		set["title"] = res.Title
	}
	if res.Snippet != "" {
		set["snippet"] = res.Snippet
	}
	if res.Score != 0 {
		set["score"] = res.Score
	}
	// Status only applies on first sight so a re-discovered resource
	// keeps its sampled/downloaded state.
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"status": res.Status, "created_at": now},
	}
	_, err := s.resources.UpdateOne(ctx,
		bson.M{"request_id": res.RequestID, "url": res.URL},
		update,
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert resource %s: %w", res.URL, err)
	}
	return nil
}

func resourceQuery(f ResourceFilter) bson.M {
	q := bson.M{}
	if f.RequestID != "" {
		q["request_id"] = f.RequestID
	}
	if f.Query != "" {
		q["query"] = f.Query
	}
	if f.Modality != "" {
		q["modality"] = f.Modality
	}
	if len(f.Statuses) > 0 {
		q["status"] = bson.M{"$in": f.Statuses}
	}
	if f.HasBlob != nil {
		if *f.HasBlob {
			q["content_blob_id"] = bson.M{"$exists": true, "$nin": bson.A{nil, ""}}
		} else {
			q["$or"] = bson.A{
				bson.M{"content_blob_id": bson.M{"$exists": false}},
				bson.M{"content_blob_id": ""},
			}
		}
	}
	return q
}

func (s *MongoStore) CountResources(ctx context.Context, f ResourceFilter) (int64, error) {
	n, err := s.resources.CountDocuments(ctx, resourceQuery(f))
	if err != nil {
		return 0, fmt.Errorf("failed to count resources: %w", err)
	}
	return n, nil
}

func (s *MongoStore) ListResources(ctx context.Context, f ResourceFilter) ([]Resource, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}
	cur, err := s.resources.Find(ctx, resourceQuery(f), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	var out []Resource
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode resources: %w", err)
	}
	return out, nil
}

func (s *MongoStore) updateResource(ctx context.Context, requestID, url string, update bson.M) error {
	result, err := s.resources.UpdateOne(ctx, bson.M{"request_id": requestID, "url": url}, update)
	if err != nil {
		return fmt.Errorf("failed to update resource %s: %w", url, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) MarkResourceSampled(ctx context.Context, requestID, url string) error {
	now := time.Now().UTC()
	return s.updateResource(ctx, requestID, url, bson.M{
		"$set":   bson.M{"status": ResourceSampled, "sampled_at": now, "updated_at": now},
		"$unset": bson.M{"error": ""},
	})
}

func (s *MongoStore) MarkResourceError(ctx context.Context, requestID, url, errMsg string) error {
	return s.updateResource(ctx, requestID, url, bson.M{
		"$set": bson.M{"status": ResourceError, "error": errMsg, "updated_at": time.Now().UTC()},
	})
}

func (s *MongoStore) MarkResourceDownloaded(ctx context.Context, requestID, url, blobID, contentType, filename string) error {
	now := time.Now().UTC()
	return s.updateResource(ctx, requestID, url, bson.M{
		"$set": bson.M{
			"status":          ResourceDownloaded,
			"content_blob_id": blobID,
			"content_type":    contentType,
			"filename":        filename,
			"downloaded_at":   now,
			"updated_at":      now,
		},
		"$unset": bson.M{"error": ""},
	})
}

func (s *MongoStore) ClearResourceBlob(ctx context.Context, requestID, url string) error {
	return s.updateResource(ctx, requestID, url, bson.M{
		"$unset": bson.M{"content_blob_id": ""},
		"$set":   bson.M{"updated_at": time.Now().UTC()},
	})
}

func (s *MongoStore) InsertDataset(ctx context.Context, ds *Dataset) error {
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now().UTC()
	}
	if _, err := s.datasets.InsertOne(ctx, ds); err != nil {
		return fmt.Errorf("failed to insert dataset %s: %w", ds.DatasetID, err)
	}
	return nil
}

func (s *MongoStore) GetDataset(ctx context.Context, datasetID string) (*Dataset, error) {
	var ds Dataset
	err := s.datasets.FindOne(ctx, bson.M{"dataset_id": datasetID}).Decode(&ds)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset %s: %w", datasetID, err)
	}
	return &ds, nil
}

func (s *MongoStore) ListDatasets(ctx context.Context) ([]Dataset, error) {
	cur, err := s.datasets.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	var out []Dataset
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode datasets: %w", err)
	}
	return out, nil
}

func (s *MongoStore) DeleteDataset(ctx context.Context, datasetID string) error {
	result, err := s.datasets.DeleteOne(ctx, bson.M{"dataset_id": datasetID})
	if err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", datasetID, err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := s.assets.DeleteMany(ctx, bson.M{"dataset_id": datasetID}); err != nil {
		return fmt.Errorf("failed to delete assets for %s: %w", datasetID, err)
	}
	return nil
}

func (s *MongoStore) InsertAssets(ctx context.Context, assets []Asset) error {
	if len(assets) == 0 {
		return nil
	}
	docs := make([]interface{}, len(assets))
	for i := range assets {
		if assets[i].CreatedAt.IsZero() {
			assets[i].CreatedAt = time.Now().UTC()
		}
		docs[i] = assets[i]
	}
	if _, err := s.assets.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to insert assets: %w", err)
	}
	return nil
}

func (s *MongoStore) ListAssets(ctx context.Context, datasetID string) ([]Asset, error) {
	cur, err := s.assets.Find(ctx, bson.M{"dataset_id": datasetID})
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	var out []Asset
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode assets: %w", err)
	}
	return out, nil
}

func (s *MongoStore) InsertCard(ctx context.Context, card *Card) error {
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now().UTC()
	}
	if _, err := s.cards.InsertOne(ctx, card); err != nil {
		return fmt.Errorf("failed to insert card for %s: %w", card.DatasetID, err)
	}
	return nil
}

func (s *MongoStore) LatestCard(ctx context.Context, datasetID string) (*Card, error) {
	var card Card
	err := s.cards.FindOne(ctx,
		bson.M{"dataset_id": datasetID},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&card)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest card for %s: %w", datasetID, err)
	}
	return &card, nil
}

func (s *MongoStore) AppendChatMessage(ctx context.Context, chatID, title string, msg ChatMessage) error {
	now := time.Now().UTC()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	update := bson.M{
		"$push": bson.M{"messages": msg},
		"$set":  bson.M{"updated_at": now},
		"$setOnInsert": bson.M{
			"title":      title,
			"created_at": now,
		},
	}
	_, err := s.chats.UpdateOne(ctx, bson.M{"chat_id": chatID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to append chat message to %s: %w", chatID, err)
	}
	return nil
}

func (s *MongoStore) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var chat Chat
	err := s.chats.FindOne(ctx, bson.M{"chat_id": chatID}).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %s: %w", chatID, err)
	}
	return &chat, nil
}

func (s *MongoStore) ListChats(ctx context.Context) ([]Chat, error) {
	cur, err := s.chats.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	var out []Chat
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode chats: %w", err)
	}
	return out, nil
}

func (s *MongoStore) DeleteChat(ctx context.Context, chatID string) error {
	result, err := s.chats.DeleteOne(ctx, bson.M{"chat_id": chatID})
	if err != nil {
		return fmt.Errorf("failed to delete chat %s: %w", chatID, err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
