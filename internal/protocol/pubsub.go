package protocol

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arma-extdb/extdb-core/internal/metrics"
)

// PubSub publishes a UUID-tagged JSON envelope to a Redis channel,
// realizing the "external RPC" example named alongside SQL and logging
// among the kinds of backing work the core hands off without blocking
// the caller on it. init_str names the channel.
type PubSub struct {
	client  *redis.Client
	channel string
}

func (h *PubSub) Init(core Core, initStr string) bool {
	channel := strings.TrimSpace(initStr)
	if channel == "" {
		return false
	}

	h.client = redis.NewClient(&redis.Options{
		Addr: redisAddrFromEnv(),
	})
	h.channel = channel

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.client.Ping(ctx).Err(); err != nil {
		return false
	}
	return true
}

func (h *PubSub) Call(core Core, input string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	envelope := `{"id":"` + uuid.NewString() + `","payload":` + jsonQuote(input) + `}`

	if err := h.client.Publish(ctx, h.channel, envelope).Err(); err != nil {
		metrics.PubsubOperations.WithLabelValues(h.channel, "error").Inc()
		return "", errWrap(err, "Connection")
	}
	metrics.PubsubOperations.WithLabelValues(h.channel, "ok").Inc()
	return "", nil
}

func jsonQuote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// redisAddrFromEnv resolves the Redis address the pub/sub handler
// connects to. The core-wide config already loads a redis section for
// this purpose; handlers read it through the same environment variable
// cmd/core exports after loading config, keeping the handler free of a
// direct dependency on the config package.
func redisAddrFromEnv() string {
	if addr := envOr("EXTDB_REDIS_ADDR", ""); addr != "" {
		return addr
	}
	return "127.0.0.1:6379"
}
