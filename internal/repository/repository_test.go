package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chatpdf-go/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Document{}, &model.ChatMessage{}))
	return db
}

func TestDocumentRepository_OwnerScoped(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openTestDB(t))

	now := time.Now()
	require.NoError(t, repo.Create(ctx, &model.Document{FileID: "f1", UserID: "alice", FileName: "a.pdf", URL: "k1", UploadedAt: now}))
	require.NoError(t, repo.Create(ctx, &model.Document{FileID: "f2", UserID: "alice", FileName: "b.pdf", URL: "k2", UploadedAt: now.Add(time.Second)}))
	require.NoError(t, repo.Create(ctx, &model.Document{FileID: "f3", UserID: "bob", FileName: "c.pdf", URL: "k3", UploadedAt: now}))

	doc, err := repo.FindByFileIDAndUser(ctx, "f1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", doc.FileName)

	_, err = repo.FindByFileIDAndUser(ctx, "f1", "bob")
	assert.ErrorIs(t, err, model.ErrNotFound)

	docs, err := repo.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "f2", docs[0].FileID)
}

func TestDocumentRepository_DuplicateFileID(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openTestDB(t))

	require.NoError(t, repo.Create(ctx, &model.Document{FileID: "f1", UserID: "alice", FileName: "a.pdf", URL: "k", UploadedAt: time.Now()}))
	err := repo.Create(ctx, &model.Document{FileID: "f1", UserID: "bob", FileName: "b.pdf", URL: "k", UploadedAt: time.Now()})
	assert.ErrorIs(t, err, model.ErrStore)
}

func testChatRepositoryOrdering(t *testing.T, repo ChatMessageRepository, fileID string) {
	ctx := context.Background()
	turns := []struct{ role, msg string }{
		{model.RoleHuman, "What color is the sky?"},
		{model.RoleAI, "Blue."},
		{model.RoleHuman, "Why?"},
	}
	for _, turn := range turns {
		m := &model.ChatMessage{FileID: fileID, UserID: "alice", Role: turn.role, Message: turn.msg}
		require.NoError(t, repo.Append(ctx, m))
		assert.NotZero(t, m.Seq)
		assert.False(t, m.CreatedAt.IsZero())
	}
	// 另一个用户在同一文档上的对话不可见
	require.NoError(t, repo.Append(ctx, &model.ChatMessage{FileID: fileID, UserID: "bob", Role: model.RoleHuman, Message: "hi"}))

	history, err := repo.History(ctx, fileID, "alice")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, turn := range turns {
		assert.Equal(t, turn.role, history[i].Role)
		assert.Equal(t, turn.msg, history[i].Message)
		assert.Equal(t, "alice", history[i].UserID)
	}
	for i := 1; i < len(history); i++ {
		assert.False(t, history[i].CreatedAt.Before(history[i-1].CreatedAt))
		assert.Greater(t, history[i].Seq, history[i-1].Seq)
	}

	empty, err := repo.History(ctx, "other-file", "alice")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// testChatRepositoryConcurrent 让多个 (file, user) 的写入者交错执行，
// 检查每个对话的顺序和彼此隔离。
func testChatRepositoryConcurrent(t *testing.T, repo ChatMessageRepository, fileID string) {
	ctx := context.Background()
	const writers, perWriter = 4, 10

	conversations := []struct{ fileID, userID string }{
		{fileID, "alice"},
		{fileID, "bob"},
		{fileID + "-other", "alice"},
	}

	var wg sync.WaitGroup
	for c, conv := range conversations {
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(c, w int, fileID, userID string) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					err := repo.Append(ctx, &model.ChatMessage{
						FileID: fileID, UserID: userID, Role: model.RoleHuman,
						Message: fmt.Sprintf("c%d-w%d-%d", c, w, i),
					})
					assert.NoError(t, err)
				}
			}(c, w, conv.fileID, conv.userID)
		}
	}
	wg.Wait()

	for c, conv := range conversations {
		history, err := repo.History(ctx, conv.fileID, conv.userID)
		require.NoError(t, err)
		require.Len(t, history, writers*perWriter, "%s/%s", conv.fileID, conv.userID)

		// 每个写入者自己的消息保持写入顺序，且不会混入其它对话
		last := make(map[int]int)
		for _, m := range history {
			assert.Equal(t, conv.fileID, m.FileID)
			assert.Equal(t, conv.userID, m.UserID)
			var gotConv, w, i int
			_, err := fmt.Sscanf(m.Message, "c%d-w%d-%d", &gotConv, &w, &i)
			require.NoError(t, err)
			require.Equal(t, c, gotConv, m.Message)
			if prev, ok := last[w]; ok {
				assert.Greater(t, i, prev)
			}
			last[w] = i
		}
		// 按 (created_at, seq) 排序
		for i := 1; i < len(history); i++ {
			prev, cur := history[i-1], history[i]
			assert.False(t, cur.CreatedAt.Before(prev.CreatedAt))
			if cur.CreatedAt.Equal(prev.CreatedAt) {
				assert.Greater(t, cur.Seq, prev.Seq)
			}
		}
	}
}

func TestGormChatMessageRepository_Ordering(t *testing.T) {
	testChatRepositoryOrdering(t, NewChatMessageRepository(openTestDB(t)), "f1")
}

func TestGormChatMessageRepository_Concurrent(t *testing.T) {
	testChatRepositoryConcurrent(t, NewChatMessageRepository(openTestDB(t)), "f1")
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func TestRedisChatMessageRepository_Ordering(t *testing.T) {
	rdb, _ := newTestRedis(t)
	testChatRepositoryOrdering(t, NewRedisChatMessageRepository(rdb), "f1")
}

func TestRedisChatMessageRepository_Concurrent(t *testing.T) {
	rdb, _ := newTestRedis(t)
	testChatRepositoryConcurrent(t, NewRedisChatMessageRepository(rdb), "f1")
}

func TestRedisChatMessageRepository_StoredFormat(t *testing.T) {
	rdb, mr := newTestRedis(t)
	repo := NewRedisChatMessageRepository(rdb)
	ctx := context.Background()

	msg := &model.ChatMessage{FileID: "f1", UserID: "alice", Role: model.RoleAI, Message: "Blue."}
	require.NoError(t, repo.Append(ctx, msg))
	assert.EqualValues(t, 1, msg.Seq)
	assert.WithinDuration(t, time.Now(), msg.CreatedAt, time.Minute)

	items, err := mr.List(chatKey("f1", "alice"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	var turn redisTurn
	require.NoError(t, json.Unmarshal([]byte(items[0]), &turn))
	assert.Equal(t, model.RoleAI, turn.Role)
	assert.Equal(t, "Blue.", turn.Message)
	assert.Equal(t, msg.CreatedAt.UnixMilli(), turn.CreatedAt)
}

func TestRedisChatMessageRepository_StoreFailure(t *testing.T) {
	rdb, mr := newTestRedis(t)
	repo := NewRedisChatMessageRepository(rdb)
	mr.Close()

	err := repo.Append(context.Background(), &model.ChatMessage{FileID: "f1", UserID: "alice", Role: model.RoleHuman, Message: "hi"})
	assert.ErrorIs(t, err, model.ErrStore)
	_, err = repo.History(context.Background(), "f1", "alice")
	assert.ErrorIs(t, err, model.ErrStore)
}
