package dispatch

import (
	"context"
	"math"

	"github.com/openmmo/querymanager/internal/protocol"
	"github.com/openmmo/querymanager/internal/query"
	"github.com/openmmo/querymanager/pkg/database"
)

func (r *Registry) loadWorldConfig(ctx context.Context, s *database.Session, q *query.Query) {
	cfg, ok := s.GetWorldConfig(ctx, q.WorldID())
	if !ok {
		return
	}
	if cfg.WorldID == 0 {
		q.Failed()
		return
	}

	addr, ok := r.hosts.Resolve(ctx, cfg.Host)
	if !ok {
		q.Failed()
		return
	}

	w := q.Begin(protocol.StatusOK)
	w.Write8(cfg.Type)
	w.Write8(cfg.RebootTime)
	w.Write32BE(addr)
	w.Write16(cfg.Port)
	w.Write16(cfg.MaxPlayers)
	w.Write16(cfg.PremiumPlayerBuffer)
	w.Write16(cfg.MaxNewbies)
	w.Write16(cfg.PremiumNewbieBuffer)
	q.Finish()
}

func (r *Registry) getWorlds(ctx context.Context, s *database.Session, q *query.Query) {
	worlds, ok := s.GetWorlds(ctx)
	if !ok {
		return
	}

	w := q.Begin(protocol.StatusOK)
	n := capCount(len(worlds), math.MaxUint8)
	w.Write8(uint8(n))
	for _, world := range worlds[:n] {
		w.WriteString(world.Name)
		w.Write8(world.Type)
		w.Write16(world.NumPlayers)
		w.Write16(world.MaxPlayers)
		w.Write16(world.OnlineRecord)
		w.Write32(world.OnlineRecordTimestamp)
	}
	q.Finish()
}

func (r *Registry) getOnlineCharacters(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	worldName := req.ReadString(30)
	if req.Overflowed() {
		q.Failed()
		return
	}

	worldID, ok := s.GetWorldID(ctx, worldName)
	if !ok {
		return
	}
	if worldID == 0 {
		q.Failed()
		return
	}

	characters, ok := s.GetOnlineCharacters(ctx, worldID)
	if !ok {
		return
	}

	w := q.Begin(protocol.StatusOK)
	n := capCount(len(characters), math.MaxUint16)
	w.Write16(uint16(n))
	for _, c := range characters[:n] {
		w.WriteString(c.Name)
		w.Write16(c.Level)
		w.WriteString(c.Profession)
	}
	q.Finish()
}

func (r *Registry) getKillStatistics(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	worldName := req.ReadString(30)
	if req.Overflowed() {
		q.Failed()
		return
	}

	worldID, ok := s.GetWorldID(ctx, worldName)
	if !ok {
		return
	}
	if worldID == 0 {
		q.Failed()
		return
	}

	stats, ok := s.GetKillStatistics(ctx, worldID)
	if !ok {
		return
	}

	w := q.Begin(protocol.StatusOK)
	n := capCount(len(stats), math.MaxUint16)
	w.Write16(uint16(n))
	for _, st := range stats[:n] {
		w.WriteString(st.RaceName)
		w.Write32(st.PlayersKilled)
		w.Write32(st.TimesKilled)
	}
	q.Finish()
}
