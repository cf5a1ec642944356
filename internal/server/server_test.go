package server

import (
	"context"
	"database/sql"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmmo/querymanager/internal/dispatch"
	"github.com/openmmo/querymanager/internal/hostcache"
	"github.com/openmmo/querymanager/internal/protocol"
	"github.com/openmmo/querymanager/internal/query"
	"github.com/openmmo/querymanager/internal/worker"
	"github.com/openmmo/querymanager/pkg/config"
	"github.com/openmmo/querymanager/pkg/database"
)

const testPassword = "sesame"

// serverEnv runs the full stack (listener, queue, worker pool, SQLite) on an
// ephemeral loopback port and talks to it over real TCP connections.
// Seeding goes through raw, a second plain connection on the same file; the
// "sqlite" driver comes registered with the database package.
type serverEnv struct {
	srv  *Server
	addr string
	raw  *sql.DB
}

func startServer(t *testing.T, mutate func(*config.Config)) *serverEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "game.db")

	cfg := config.GetDefaultConfig()
	cfg.Server.Port = 0 // the kernel picks a free port, Addr reports it
	cfg.Server.Password = testPassword
	cfg.Server.MaxConnections = 4
	cfg.Database.SQLite.Path = path
	cfg.Database.SQLite.PatchDir = filepath.Join(dir, "patches")
	cfg.ShutdownTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}

	db, err := database.Open(ctx, &cfg.Database)
	require.NoError(t, err)

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	queue := query.NewQueue(2 * cfg.Server.MaxConnections)
	pool := worker.NewPool(db, queue, dispatch.New(hostcache.New(cfg.HostCache)),
		nil, cfg.Server)
	require.NoError(t, pool.Start(ctx))

	srv := New(cfg, queue, nil)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	// Cleanups run LIFO: connections registered by dial close first, then
	// the listener drains, and only then do the pool and database go away.
	t.Cleanup(func() {
		assert.NoError(t, srv.Stop())
		assert.NoError(t, <-serveErr)
		pool.Shutdown()
		assert.NoError(t, raw.Close())
		assert.NoError(t, db.Close())
	})

	return &serverEnv{srv: srv, addr: srv.Addr().String(), raw: raw}
}

func (e *serverEnv) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", e.addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (e *serverEnv) seedWorld(t *testing.T, id int, name string) {
	t.Helper()
	_, err := e.raw.Exec("INSERT INTO Worlds (WorldID, Name, Host, Port, MaxPlayers)"+
		" VALUES (?, ?, 'localhost', 7172, 50)", id, name)
	require.NoError(t, err)
}

// send writes one length-framed request.
func send(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	_, err := conn.Write(protocol.AppendFrame(nil, payload))
	require.NoError(t, err)
}

// recv reads one response frame and returns a reader positioned at the
// status byte.
func recv(t *testing.T, conn net.Conn) *protocol.ReadBuffer {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 0x20000)
	n, err := protocol.ReadFrame(conn, buf)
	require.NoError(t, err)
	return protocol.NewReadBuffer(buf[:n])
}

func status(r *protocol.ReadBuffer) protocol.Status {
	return protocol.Status(r.Read8())
}

// expectClosed waits for the server's FIN.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var one [1]byte
	_, err := conn.Read(one[:])
	assert.ErrorIs(t, err, io.EOF)
}

func payload(t *testing.T, op protocol.Opcode, build func(w *protocol.WriteBuffer)) []byte {
	t.Helper()
	w := protocol.NewWriteBuffer(make([]byte, 0x1000))
	w.Write8(uint8(op))
	if build != nil {
		build(w)
	}
	require.False(t, w.Overflowed())
	return w.Bytes()
}

func loginPayload(t *testing.T, role protocol.Role, password, world string) []byte {
	t.Helper()
	return payload(t, protocol.OpLogin, func(w *protocol.WriteBuffer) {
		w.Write8(uint8(role))
		w.WriteString(password)
		if role == protocol.RoleGame {
			w.WriteString(world)
		}
	})
}

func TestGameLoginAuthorizes(t *testing.T) {
	e := startServer(t, nil)
	e.seedWorld(t, 1, "Zanera")

	conn := e.dial(t)
	send(t, conn, loginPayload(t, protocol.RoleGame, testPassword, "Zanera"))
	r := recv(t, conn)
	assert.Equal(t, protocol.StatusOK, status(r))
	assert.False(t, r.CanRead(1), "the login reply carries no body")

	// The connection is live and bound to the world: a world-scoped query
	// round-trips without carrying the world name.
	send(t, conn, payload(t, protocol.OpClearIsOnline, nil))
	r = recv(t, conn)
	assert.Equal(t, protocol.StatusOK, status(r))
	assert.Equal(t, uint16(0), r.Read16())
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	e := startServer(t, nil)

	conn := e.dial(t)
	// The password gate fires before world resolution, so no world is
	// seeded on purpose.
	send(t, conn, loginPayload(t, protocol.RoleGame, "wrong", "Zanera"))
	assert.Equal(t, protocol.StatusFailed, status(recv(t, conn)))
	expectClosed(t, conn)
}

func TestLoginRejectsUnknownWorld(t *testing.T) {
	e := startServer(t, nil)

	conn := e.dial(t)
	send(t, conn, loginPayload(t, protocol.RoleGame, testPassword, "Atlantis"))
	assert.Equal(t, protocol.StatusFailed, status(recv(t, conn)))
	expectClosed(t, conn)
}

func TestLoginRejectsUnknownRole(t *testing.T) {
	e := startServer(t, nil)

	conn := e.dial(t)
	send(t, conn, loginPayload(t, protocol.Role(9), testPassword, ""))
	assert.Equal(t, protocol.StatusFailed, status(recv(t, conn)))
	expectClosed(t, conn)
}

func TestUnauthorizedQueryClosesConnection(t *testing.T) {
	e := startServer(t, nil)

	conn := e.dial(t)
	send(t, conn, payload(t, protocol.OpGetWorlds, nil))
	assert.Equal(t, protocol.StatusFailed, status(recv(t, conn)))
	expectClosed(t, conn)
}

func TestWebLoginServesQueries(t *testing.T) {
	e := startServer(t, nil)
	e.seedWorld(t, 1, "Zanera")

	conn := e.dial(t)
	send(t, conn, loginPayload(t, protocol.RoleWeb, testPassword, ""))
	assert.Equal(t, protocol.StatusOK, status(recv(t, conn)))

	send(t, conn, payload(t, protocol.OpGetWorlds, nil))
	r := recv(t, conn)
	require.Equal(t, protocol.StatusOK, status(r))
	require.Equal(t, uint8(1), r.Read8())
	assert.Equal(t, "Zanera", r.ReadString(30))
	r.Read8() // world type
	assert.Equal(t, uint16(0), r.Read16(), "players online")
	assert.Equal(t, uint16(50), r.Read16(), "player cap")
	assert.False(t, r.Overflowed())
}

func TestWhitelistClosesMisbehavingRole(t *testing.T) {
	e := startServer(t, nil)

	conn := e.dial(t)
	send(t, conn, loginPayload(t, protocol.RoleWeb, testPassword, ""))
	require.Equal(t, protocol.StatusOK, status(recv(t, conn)))

	// SetNamelock is game-server territory; a web client sending it is
	// broken and gets dropped.
	send(t, conn, payload(t, protocol.OpSetNamelock, nil))
	assert.Equal(t, protocol.StatusFailed, status(recv(t, conn)))
	expectClosed(t, conn)
}

func TestGameSurvivesStrayOpcode(t *testing.T) {
	e := startServer(t, nil)
	e.seedWorld(t, 1, "Zanera")

	conn := e.dial(t)
	send(t, conn, loginPayload(t, protocol.RoleGame, testPassword, "Zanera"))
	require.Equal(t, protocol.StatusOK, status(recv(t, conn)))

	// A game server issuing a web-only opcode gets a refusal, not a
	// disconnect.
	send(t, conn, payload(t, protocol.OpCreateAccount, nil))
	assert.Equal(t, protocol.StatusFailed, status(recv(t, conn)))

	send(t, conn, payload(t, protocol.OpClearIsOnline, nil))
	assert.Equal(t, protocol.StatusOK, status(recv(t, conn)))
}

func TestIdleConnectionDropped(t *testing.T) {
	e := startServer(t, func(cfg *config.Config) {
		cfg.Server.MaxConnectionIdleTime = 150 * time.Millisecond
	})

	conn := e.dial(t)
	expectClosed(t, conn)
}

// paddedLogin builds a login payload at the head of a size-byte frame. The
// trailing zeros are never read; the point is the frame length itself.
func paddedLogin(t *testing.T, size int) []byte {
	t.Helper()
	buf := make([]byte, size)
	w := protocol.NewWriteBuffer(buf)
	w.Write8(uint8(protocol.OpLogin))
	w.Write8(uint8(protocol.RoleLogin))
	w.WriteString(testPassword)
	require.False(t, w.Overflowed())
	return buf
}

func TestFrameLengthBoundaries(t *testing.T) {
	e := startServer(t, nil)

	// Straddle the 16-bit prefix limit: the largest direct length, the
	// escape marker itself, and a length only the 32-bit form can carry.
	for _, size := range []int{0xFFFE, 0xFFFF, 0x10000} {
		conn := e.dial(t)
		send(t, conn, paddedLogin(t, size))
		assert.Equal(t, protocol.StatusOK, status(recv(t, conn)),
			"frame of %d bytes", size)
		conn.Close()
	}
}

func TestStopDrainsConnections(t *testing.T) {
	e := startServer(t, nil)

	conn := e.dial(t)
	send(t, conn, loginPayload(t, protocol.RoleWeb, testPassword, ""))
	require.Equal(t, protocol.StatusOK, status(recv(t, conn)))

	require.NoError(t, e.srv.Stop())
	expectClosed(t, conn)
	assert.Equal(t, 0, e.srv.ConnectionCount())
}

func TestLoopbackPredicate(t *testing.T) {
	assert.True(t, loopback(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7174}))
	assert.True(t, loopback(&net.TCPAddr{IP: net.IPv6loopback, Port: 7174}))
	assert.False(t, loopback(&net.TCPAddr{IP: net.IPv4(10, 1, 2, 3), Port: 7174}))
	assert.False(t, loopback(&net.UnixAddr{Name: "@qm", Net: "unix"}))
}
