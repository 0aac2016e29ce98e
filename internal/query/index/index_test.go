package index

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func person(name, bio string, seg int) Document {
	return Document{
		Entity:  "Person",
		Segment: seg,
		Text:    map[string]string{"name": name, "bio": bio},
		Keyword: map[string]string{"city": "rome"},
	}
}

func keys(hits []Hit[string]) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Key)
	}
	return out
}

func TestAnalyze(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, Analyze("Hello, WORLD! 42"))
	assert.True(t, Matches("The quick brown fox", "QUICK fox"))
	assert.False(t, Matches("The quick brown fox", "slow fox"))
	assert.False(t, Matches("anything", "  "))
}

func TestSearchByEntityAndMatch(t *testing.T) {
	idx := New[string]()
	idx.Add("p0", person("name0", "likes go", 0))
	idx.Add("p1", person("name1", "likes java", 1))
	idx.Add("c0", Document{Entity: "Car", Segment: 0, Text: map[string]string{"name": "name1"}})

	assert.ElementsMatch(t, []string{"p0", "p1"}, keys(idx.Search(Request{Entity: "Person"})))
	assert.Equal(t, []string{"p1"}, keys(idx.Search(Request{Entity: "Person", Must: []Clause{Match("name", "name1")}})))
	assert.Empty(t, idx.Search(Request{Entity: "Person", Must: []Clause{Match("name", "name2")}}))
	assert.Empty(t, idx.Search(Request{Entity: "Unknown"}))

	hits := idx.Search(Request{Entity: "Person", Must: []Clause{Term("city", "rome")}})
	assert.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, float32(1), h.Score)
	}
	assert.Empty(t, idx.Search(Request{Entity: "Person", Must: []Clause{Term("city", "oslo")}}))
}

func TestUpdateAndDelete(t *testing.T) {
	idx := New[string]()
	idx.Add("p0", person("name0", "", 0))
	idx.Add("p0", person("renamed", "", 0))
	assert.Equal(t, 1, idx.Len())
	assert.Empty(t, idx.Search(Request{Entity: "Person", Must: []Clause{Match("name", "name0")}}))
	assert.Len(t, idx.Search(Request{Entity: "Person", Must: []Clause{Match("name", "renamed")}}), 1)

	idx.Delete("p0")
	idx.Delete("p0")
	assert.Zero(t, idx.Len())
	assert.Empty(t, idx.Search(Request{Entity: "Person"}))
}

func TestSegments(t *testing.T) {
	idx := New[string]()
	idx.Add("a", person("a", "", 1))
	idx.Add("b", person("b", "", 2))
	idx.Add("c", person("c", "", 3))

	hits := idx.Search(Request{Entity: "Person", Segments: roaring.BitmapOf(1, 3)})
	assert.ElementsMatch(t, []string{"a", "c"}, keys(hits))

	assert.Equal(t, 2, idx.DropSegments(roaring.BitmapOf(2, 3, 9)))
	assert.Equal(t, []string{"a"}, keys(idx.Search(Request{Entity: "Person"})))
}

func TestBM25Ranking(t *testing.T) {
	idx := New[string]()
	idx.Add("short", person("x", "go go", 0))
	idx.Add("long", person("y", "go and many other words about things", 0))
	idx.Add("none", person("z", "java", 0))

	hits := idx.Search(Request{Entity: "Person", Must: []Clause{Match("bio", "go")}, Score: true})
	require.Len(t, hits, 2)
	scores := map[string]float32{}
	for _, h := range hits {
		scores[h.Key] = h.Score
	}
	assert.Greater(t, scores["short"], scores["long"])
	assert.Greater(t, scores["long"], float32(0))
}
