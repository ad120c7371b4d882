package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/flarexio/docrag/conversation"
)

type redisStoreTestSuite struct {
	suite.Suite
	ctx   context.Context
	store conversation.Store
	rdb   interface{ Close() error }
}

func (suite *redisStoreTestSuite) SetupSuite() {
	addr := os.Getenv("DOCRAG_TEST_REDIS_ADDR")
	if addr == "" {
		suite.T().Skip("DOCRAG_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()

	rdb := NewClient(Config{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		suite.T().Skip(err.Error())
	}

	suite.ctx = ctx
	suite.rdb = rdb
	suite.store = NewStore(rdb, time.Minute)
}

func (suite *redisStoreTestSuite) TestAppendAndClear() {
	ctx := suite.ctx
	session := "test-" + time.Now().Format("150405.000000")

	err := suite.store.Append(ctx, session,
		conversation.UserTurn("what was revenue?"),
		conversation.AssistantTurn("It rose 12%."),
	)
	suite.NoError(err)

	history, err := suite.store.History(ctx, session)
	suite.NoError(err)
	suite.Len(history, 2)
	suite.Equal(conversation.SpeakerUser, history[0].Speaker)
	suite.Equal("It rose 12%.", history[1].Text)

	suite.NoError(suite.store.Clear(ctx, session))

	history, err = suite.store.History(ctx, session)
	suite.NoError(err)
	suite.Empty(history)
}

func (suite *redisStoreTestSuite) TearDownSuite() {
	if suite.rdb != nil {
		suite.rdb.Close()
	}
}

func TestRedisStoreTestSuite(t *testing.T) {
	suite.Run(t, new(redisStoreTestSuite))
}
