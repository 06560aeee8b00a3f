package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testClassifier() *Classifier {
	return NewClassifier(SpikeConfig{
		ViewerRatio: 1.5,
		ViewerFloor: 100,
		ChatRatio:   2.0,
		ChatFloor:   5.0,
	})
}

func snap(channel string, viewers int64, chat float64, category string) ChannelSnapshot {
	return ChannelSnapshot{
		Channel:     channel,
		Viewers:     viewers,
		ChatRate1m:  chat,
		Category:    category,
		TsCaptureMs: 1_700_000_000_000,
	}
}

func TestClassifyFirstObservationRaisesNothing(t *testing.T) {
	c := testClassifier()

	flags := c.Classify(nil, snap("chan", 100_000, 500, "Just Chatting"))
	assert.Equal(t, EventFlags{}, flags)
	assert.False(t, flags.Any())
}

func TestClassifyDeterministic(t *testing.T) {
	c := testClassifier()
	prev := snap("chan", 100, 2, "IRL")
	cur := snap("chan", 1000, 20, "Music")

	first := c.Classify(&prev, cur)
	second := c.Classify(&prev, cur)
	assert.Equal(t, first, second)
	assert.True(t, first.ViewerSpike)
	assert.True(t, first.ChatSpike)
	assert.True(t, first.CategoryChange)
}

func TestClassifyViewerSpike(t *testing.T) {
	c := testClassifier()

	tests := []struct {
		name string
		prev int64
		cur  int64
		want bool
	}{
		{"big jump", 1000, 2000, true},
		{"ratio met but rise under floor", 50, 80, false},
		{"rise met but under ratio", 10_000, 10_200, false},
		{"flat", 500, 500, false},
		{"drop", 2000, 100, false},
		{"from zero over floor", 0, 150, true},
		{"from zero under floor", 0, 50, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := snap("chan", tt.prev, 0, "IRL")
			flags := c.Classify(&prev, snap("chan", tt.cur, 0, "IRL"))
			assert.Equal(t, tt.want, flags.ViewerSpike)
			assert.False(t, flags.ChatSpike)
			assert.False(t, flags.CategoryChange)
		})
	}
}

func TestClassifyChatSpike(t *testing.T) {
	c := testClassifier()

	prev := snap("chan", 100, 10, "IRL")
	flags := c.Classify(&prev, snap("chan", 100, 25, "IRL"))
	assert.True(t, flags.ChatSpike)

	// doubles but rises by less than the floor
	prev = snap("chan", 100, 2, "IRL")
	flags = c.Classify(&prev, snap("chan", 100, 4.5, "IRL"))
	assert.False(t, flags.ChatSpike)
}

func TestClassifyCategoryChange(t *testing.T) {
	c := testClassifier()

	prev := snap("chan", 100, 1, "IRL")
	flags := c.Classify(&prev, snap("chan", 100, 1, "Music"))
	assert.True(t, flags.CategoryChange)

	// unchanged category
	flags = c.Classify(&prev, snap("chan", 100, 1, "IRL"))
	assert.False(t, flags.CategoryChange)

	// previous category unknown: no event even though current is set
	prev = snap("chan", 100, 1, "")
	flags = c.Classify(&prev, snap("chan", 100, 1, "Music"))
	assert.False(t, flags.CategoryChange)
}

func TestNewClassifierNormalizesConfig(t *testing.T) {
	c := NewClassifier(SpikeConfig{ViewerRatio: 0, ChatRatio: -3, ViewerFloor: -1, ChatFloor: -1})
	def := DefaultSpikeConfig()

	assert.Equal(t, def.ViewerRatio, c.cfg.ViewerRatio)
	assert.Equal(t, def.ChatRatio, c.cfg.ChatRatio)
	assert.Equal(t, def.ViewerFloor, c.cfg.ViewerFloor)
	assert.Equal(t, def.ChatFloor, c.cfg.ChatFloor)
}

func TestEventFlagsKinds(t *testing.T) {
	assert.Empty(t, EventFlags{}.Kinds())
	assert.Equal(t,
		[]string{EventViewerSpike, EventChatSpike, EventCategoryChange},
		EventFlags{ViewerSpike: true, ChatSpike: true, CategoryChange: true}.Kinds())
	assert.Equal(t, []string{EventChatSpike}, EventFlags{ChatSpike: true}.Kinds())
}
