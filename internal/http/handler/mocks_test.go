package handler_test

import (
	"context"

	"storefront.chat/relay/internal/smartdelay"
)

type mockSmartDelayAdmin struct {
	cfg       smartdelay.Config
	stats     []smartdelay.QueueStats
	flushed   map[string]bool
	flushAll  int
	updateErr error
	updated   *smartdelay.Config
}

func (m *mockSmartDelayAdmin) Config() smartdelay.Config {
	return m.cfg
}

func (m *mockSmartDelayAdmin) UpdateConfig(cfg smartdelay.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = &cfg
	m.cfg = cfg
	return nil
}

func (m *mockSmartDelayAdmin) Classify(text string) smartdelay.Classification {
	return smartdelay.NewClassifier(m.cfg).Classify(text)
}

func (m *mockSmartDelayAdmin) Stats() []smartdelay.QueueStats {
	return m.stats
}

func (m *mockSmartDelayAdmin) FlushOne(ctx context.Context, key string) bool {
	return m.flushed[key]
}

func (m *mockSmartDelayAdmin) FlushAll(ctx context.Context) int {
	return m.flushAll
}
