package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	svc := NewService("test-secret", time.Hour)

	t.Run("should round-trip claims", func(t *testing.T) {
		token, err := svc.IssueToken("0xbebis", RoleContractor, 1)
		require.NoError(t, err)

		claims, err := svc.VerifyToken(token)
		require.NoError(t, err)
		assert.Equal(t, "0xbebis", claims.Wallet)
		assert.Equal(t, RoleContractor, claims.Role)
		assert.Equal(t, uint64(1), claims.ContractorID)
	})

	t.Run("should strip bearer prefix", func(t *testing.T) {
		token, err := svc.IssueToken("0xadmin", RoleAdmin, 0)
		require.NoError(t, err)

		claims, err := svc.VerifyToken("Bearer " + token)
		require.NoError(t, err)
		assert.Equal(t, RoleAdmin, claims.Role)
	})

	t.Run("should reject token signed with another secret", func(t *testing.T) {
		other := NewService("other-secret", time.Hour)
		token, err := other.IssueToken("0xadmin", RoleAdmin, 0)
		require.NoError(t, err)

		_, err = svc.VerifyToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("should reject expired token", func(t *testing.T) {
		short := NewService("test-secret", time.Nanosecond)
		token, err := short.IssueToken("0xadmin", RoleAdmin, 0)
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		_, err = svc.VerifyToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("should reject garbage", func(t *testing.T) {
		_, err := svc.VerifyToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
