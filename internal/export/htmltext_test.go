// internal/export/htmltext_test.go
package export

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "tags stripped",
			in:   `<html><body><p>Hello <b>world</b></p></body></html>`,
			want: "Hello world",
		},
		{
			name: "script and style dropped",
			in:   `<html><head><style>p{color:red}</style></head><body><script>alert(1)</script><p>visible</p></body></html>`,
			want: "visible",
		},
		{
			name: "entities decoded",
			in:   `<p>fish &amp; chips &lt;now&gt;</p>`,
			want: "fish & chips <now>",
		},
		{
			name: "whitespace collapsed",
			in:   "<p>a   lot\t\tof     space</p>\n\n\n<p>second</p>",
			want: "a lot of space\nsecond",
		},
		{
			name: "block elements break lines",
			in:   `<div>first</div><div>second</div><span>same </span><span>line</span>`,
			want: "first\nsecond\nsame line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HTMLToText(strings.NewReader(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
