package stores

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampLimit(t *testing.T) {
	table := []struct {
		in   int
		want int
	}{
		{-5, 1},
		{0, 1},
		{1, 1},
		{20, 20},
		{100, 100},
		{101, 100},
		{9999, 100},
	}
	for _, tc := range table {
		assert.Equal(t, tc.want, ClampLimit(tc.in))
	}
}

func TestPublicURL(t *testing.T) {
	got := publicURL("https://storage.example.com/v0/b", "recycling-images", "predictions/abc-123.jpg", "tok-1")
	assert.Equal(t,
		"https://storage.example.com/v0/b/recycling-images/predictions%2Fabc-123.jpg?alt=media&token=tok-1",
		got)
}
