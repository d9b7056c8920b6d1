package email

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/mirror_server/internal/pkg/queue"
)

func TestQueueMailer_Send(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	q := queue.NewQueue(rdb, "outbox")
	mailer := NewQueueMailer(q)

	msg, err := PasswordResetMessage("ada@example.com", "Ada", "https://app/reset")
	require.NoError(t, err)
	require.NoError(t, mailer.Send(context.Background(), msg))

	job, err := q.Pop(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "ada@example.com", job.To)
	assert.Equal(t, "password_reset", job.Template)
	assert.Equal(t, msg.HTML, job.HTML)
}
