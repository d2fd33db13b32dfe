// internal/gather/samples.go
package gather

import "github.com/fyrsmithlabs/corpusd/internal/modality"

// Curated public sample assets used when a media search resolves no
// direct asset URLs. Keeps downstream sampling and download exercised
// even for niche queries.
var curatedSamples = map[string][]Item{
	modality.Audio: {
		{URL: "https://www2.cs.uic.edu/~i101/SoundFiles/BabyElephantWalk60.wav", Title: "Baby Elephant Walk (sample)"},
		{URL: "https://www2.cs.uic.edu/~i101/SoundFiles/CantinaBand60.wav", Title: "Cantina Band (sample)"},
		{URL: "https://www2.cs.uic.edu/~i101/SoundFiles/StarWars60.wav", Title: "Star Wars theme (sample)"},
	},
	modality.Video: {
		{URL: "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/BigBuckBunny.mp4", Title: "Big Buck Bunny (sample)"},
		{URL: "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/ElephantsDream.mp4", Title: "Elephants Dream (sample)"},
		{URL: "https://commondatastorage.googleapis.com/gtv-videos-bucket/sample/ForBiggerBlazes.mp4", Title: "For Bigger Blazes (sample)"},
	},
	modality.ThreeD: {
		{URL: "https://raw.githubusercontent.com/KhronosGroup/glTF-Sample-Models/master/2.0/Duck/glTF-Binary/Duck.glb", Title: "Duck (glTF sample)"},
		{URL: "https://raw.githubusercontent.com/KhronosGroup/glTF-Sample-Models/master/2.0/Box/glTF-Binary/Box.glb", Title: "Box (glTF sample)"},
		{URL: "https://raw.githubusercontent.com/KhronosGroup/glTF-Sample-Models/master/2.0/Avocado/glTF-Binary/Avocado.glb", Title: "Avocado (glTF sample)"},
	},
}

// sampleAssets returns the curated fallback items for a media modality.
func sampleAssets(mod string) []Item {
	return curatedSamples[modality.Normalize(mod)]
}
