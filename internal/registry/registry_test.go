package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrej220/fleetup/internal/fleet"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGetHost(t *testing.T) {
	s := openMem(t)

	h := fleet.HostRecord{Name: "web1", Addr: "10.0.0.5", Port: 22, User: "admin", AuthMethod: fleet.AuthKey, KeyPath: "/home/admin/.ssh/id_ed25519"}
	require.NoError(t, s.SaveHost(&h))
	assert.NotZero(t, h.ID)

	got, err := s.GetHost(h.ID)
	require.NoError(t, err)
	assert.Equal(t, "web1", got.Name)
	assert.Equal(t, "10.0.0.5", got.Addr)
	assert.Equal(t, fleet.AuthKey, got.AuthMethod)
	assert.Nil(t, got.PendingUpdates)
	assert.Nil(t, got.LastCheck)
}

func TestSaveHost_UpsertByName(t *testing.T) {
	s := openMem(t)

	h := fleet.HostRecord{Name: "db1", Addr: "10.0.0.9"}
	require.NoError(t, s.SaveHost(&h))
	first := h.ID

	h2 := fleet.HostRecord{Name: "db1", Addr: "10.0.0.10", User: "postgres"}
	require.NoError(t, s.SaveHost(&h2))
	assert.Equal(t, first, h2.ID)

	got, err := s.GetHost(first)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.10", got.Addr)
	assert.Equal(t, "postgres", got.User)
}

func TestSaveHost_DefaultsAuthMethod(t *testing.T) {
	s := openMem(t)

	h := fleet.HostRecord{Name: "plain", Addr: "10.0.0.7"}
	require.NoError(t, s.SaveHost(&h))

	got, err := s.GetHost(h.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.AuthKey, got.AuthMethod)

	// updates keep satisfying the auth_method constraint too
	h2 := fleet.HostRecord{Name: "plain", Addr: "10.0.0.8"}
	require.NoError(t, s.SaveHost(&h2))
	got, err = s.GetHost(h2.ID)
	require.NoError(t, err)
	assert.Equal(t, fleet.AuthKey, got.AuthMethod)
	assert.Equal(t, "10.0.0.8", got.Addr)
}

func TestGetHost_NotFound(t *testing.T) {
	s := openMem(t)
	_, err := s.GetHost(42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetHosts_SkipsMissing(t *testing.T) {
	s := openMem(t)
	h := fleet.HostRecord{Name: "only"}
	require.NoError(t, s.SaveHost(&h))

	list, err := s.GetHosts([]int64{h.ID, 999})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "only", list[0].Name)
}

func TestRecordCheckResult(t *testing.T) {
	s := openMem(t)
	h := fleet.HostRecord{Name: "web2", Addr: "10.0.0.6"}
	require.NoError(t, s.SaveHost(&h))

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	count := 7
	require.NoError(t, s.RecordCheckResult(h.ID, ts, &count))

	got, err := s.GetHost(h.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PendingUpdates)
	assert.Equal(t, 7, *got.PendingUpdates)
	require.NotNil(t, got.LastCheck)
	assert.True(t, got.LastCheck.Equal(ts))

	// repeating the identical check is idempotent
	require.NoError(t, s.RecordCheckResult(h.ID, ts, &count))
	again, err := s.GetHost(h.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, *again.PendingUpdates)

	assert.ErrorIs(t, s.RecordCheckResult(999, ts, &count), ErrNotFound)
}

func TestHostPassword_RoundTrip(t *testing.T) {
	s := openMem(t)
	h := fleet.HostRecord{Name: "pwhost", AuthMethod: fleet.AuthPassword}
	require.NoError(t, s.SaveHost(&h))

	blob, err := s.HostPassword(h.ID)
	require.NoError(t, err)
	assert.Nil(t, blob)

	require.NoError(t, s.SetHostPassword(h.ID, []byte("ciphertext")))
	blob, err = s.HostPassword(h.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), blob)

	assert.ErrorIs(t, s.SetHostPassword(999, []byte("x")), ErrNotFound)
}

func TestListHosts_Ordered(t *testing.T) {
	s := openMem(t)
	for _, name := range []string{"zeta", "alpha", "mike"} {
		h := fleet.HostRecord{Name: name}
		require.NoError(t, s.SaveHost(&h))
	}
	list, err := s.ListHosts()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[2].Name)
}

func TestSaveHost_RejectsBadAuthMethod(t *testing.T) {
	s := openMem(t)
	h := fleet.HostRecord{Name: "bad", AuthMethod: "agent"}
	assert.Error(t, s.SaveHost(&h))
}
