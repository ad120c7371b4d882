package nats

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	assert := assert.New(t)

	msg := nats.NewMsg("docrag.query")
	assert.NoError(Error(msg))

	msg.Header.Set(micro.ErrorCodeHeader, "417")
	msg.Header.Set(micro.ErrorHeader, "embedding unavailable")
	assert.EqualError(Error(msg), "417:embedding unavailable")

	msg = nats.NewMsg("docrag.query")
	msg.Header.Set(micro.ErrorCodeHeader, "500")
	assert.EqualError(Error(msg), "500:unknown error")

	assert.Error(Error(nil))
}

func TestWithTimeout(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := withTimeout(context.Background(), time.Minute)
	defer cancel()

	deadline, ok := ctx.Deadline()
	assert.True(ok)
	assert.WithinDuration(time.Now().Add(time.Minute), deadline, 5*time.Second)

	parent, cancelParent := context.WithTimeout(context.Background(), time.Second)
	defer cancelParent()

	ctx, cancel = withTimeout(parent, time.Hour)
	defer cancel()

	kept, _ := parent.Deadline()
	deadline, _ = ctx.Deadline()
	assert.Equal(kept, deadline)
}
