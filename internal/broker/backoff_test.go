package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Backoff(t *testing.T) {
	req := require.New(t)

	req.Equal(time.Second, backoff(time.Second, 0))
	req.Equal(2*time.Second, backoff(time.Second, 1))
	req.Equal(4*time.Second, backoff(time.Second, 2))
	req.Equal(32*time.Second, backoff(time.Second, 5))

	// capped at 60s
	req.Equal(60*time.Second, backoff(time.Second, 8))
	req.Equal(60*time.Second, backoff(time.Second, 100))

	// zero base falls back to 1s
	req.Equal(time.Second, backoff(0, 0))
	req.Equal(2*time.Second, backoff(0, 1))

	// negative attempt treated as first try
	req.Equal(time.Second, backoff(time.Second, -3))
}
