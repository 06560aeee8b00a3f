package main

// SpikeConfig is the injected spike rule: a metric spikes when it rises by
// at least the floor AND reaches ratio times its previous value. The actual
// numbers are tunables owned by the operator, not by the classifier.
type SpikeConfig struct {
	ViewerRatio float64
	ViewerFloor int64
	ChatRatio   float64
	ChatFloor   float64
}

func DefaultSpikeConfig() SpikeConfig {
	return SpikeConfig{
		ViewerRatio: 1.5,
		ViewerFloor: 100,
		ChatRatio:   2.0,
		ChatFloor:   5.0,
	}
}

// Classifier turns a (previous, current) snapshot pair into event flags.
// Pure: no state beyond the injected config, same inputs always give the
// same flags, and nothing older than the previous tick is consulted.
type Classifier struct {
	cfg SpikeConfig
}

func NewClassifier(cfg SpikeConfig) *Classifier {
	def := DefaultSpikeConfig()
	if cfg.ViewerRatio <= 1 {
		cfg.ViewerRatio = def.ViewerRatio
	}
	if cfg.ViewerFloor < 0 {
		cfg.ViewerFloor = def.ViewerFloor
	}
	if cfg.ChatRatio <= 1 {
		cfg.ChatRatio = def.ChatRatio
	}
	if cfg.ChatFloor < 0 {
		cfg.ChatFloor = def.ChatFloor
	}
	return &Classifier{cfg: cfg}
}

// Classify flags viewer spikes, chat spikes and category changes for one
// channel at one tick. A nil prev (first observed snapshot) never raises
// anything, category included.
func (c *Classifier) Classify(prev *ChannelSnapshot, cur ChannelSnapshot) EventFlags {
	var f EventFlags
	if prev == nil {
		return f
	}

	f.ViewerSpike = spiked(float64(prev.Viewers), float64(cur.Viewers), c.cfg.ViewerRatio, float64(c.cfg.ViewerFloor))
	f.ChatSpike = spiked(prev.ChatRate1m, cur.ChatRate1m, c.cfg.ChatRatio, c.cfg.ChatFloor)
	f.CategoryChange = prev.Category != "" && prev.Category != cur.Category

	return f
}

// spiked: rise >= floor and cur >= prev*ratio. A prev of zero leaves only
// the floor in play, so a channel coming up from nothing still flags once
// it clears the absolute threshold.
func spiked(prev, cur, ratio, floor float64) bool {
	if cur-prev < floor {
		return false
	}
	return cur >= prev*ratio
}
