package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saviobatista/movement-logger/internal/auth"
	"github.com/saviobatista/movement-logger/internal/redis"
	"github.com/saviobatista/movement-logger/internal/testutils"
)

func TestRunIssueAndRevoke(t *testing.T) {
	fake := testutils.NewFakeRedis()
	a := auth.New(redis.NewWithClient(fake))
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, a, "user-1", "", time.Hour, &out))
	token := strings.TrimSpace(out.String())
	assert.Len(t, token, 36)

	user, err := a.Verify(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", user)

	out.Reset()
	require.NoError(t, run(ctx, a, "", token, time.Hour, &out))
	assert.Equal(t, "revoked\n", out.String())

	_, err = a.Verify(ctx, "Bearer "+token)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestRunRequiresAction(t *testing.T) {
	a := auth.New(redis.NewWithClient(testutils.NewFakeRedis()))
	err := run(context.Background(), a, "", "", time.Hour, &bytes.Buffer{})
	assert.ErrorContains(t, err, "-user or -revoke")
}
