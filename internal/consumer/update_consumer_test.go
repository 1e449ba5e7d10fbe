package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	updates chan tgbotapi.Update
	config  tgbotapi.UpdateConfig
	stopped bool
}

func (f *fakeSource) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	f.config = config
	return f.updates
}

func (f *fakeSource) StopReceivingUpdates() { f.stopped = true }

type recordingHandler struct {
	mu   sync.Mutex
	ids  []int
	fail bool
}

func (h *recordingHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids = append(h.ids, update.UpdateID)
	if h.fail {
		return errors.New("queue closed")
	}
	return nil
}

func TestUpdateConsumer_HandlesUntilChannelCloses(t *testing.T) {
	source := &fakeSource{updates: make(chan tgbotapi.Update, 3)}
	h := &recordingHandler{fail: true}
	source.updates <- tgbotapi.Update{UpdateID: 1}
	source.updates <- tgbotapi.Update{UpdateID: 2}
	close(source.updates)

	err := NewUpdateConsumer(source, h).Start(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, h.ids)
	assert.Equal(t, 60, source.config.Timeout)
	assert.False(t, source.stopped)
}

func TestUpdateConsumer_StopsOnCancel(t *testing.T) {
	source := &fakeSource{updates: make(chan tgbotapi.Update)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewUpdateConsumer(source, &recordingHandler{}).Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.True(t, source.stopped)
}
