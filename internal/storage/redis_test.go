package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Redis在启动降级后可能整个为nil，去重方法必须报错而不是崩掉调用方
func TestRawFileDedupUninitializedRedis(t *testing.T) {
	ctx := context.Background()

	var nilRedis *Redis
	exists, err := nilRedis.CheckAndAddRawFileMD5(ctx, "d41d8cd98f00b204e9800998ecf8427e")
	require.Error(t, err)
	assert.False(t, exists)

	require.Error(t, nilRedis.RemoveRawFileMD5(ctx, "d41d8cd98f00b204e9800998ecf8427e"))

	noClient := &Redis{}
	_, err = noClient.CheckAndAddRawFileMD5(ctx, "d41d8cd98f00b204e9800998ecf8427e")
	require.Error(t, err)
	require.Error(t, noClient.RemoveRawFileMD5(ctx, "d41d8cd98f00b204e9800998ecf8427e"))
}
