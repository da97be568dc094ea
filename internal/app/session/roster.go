package session

import (
	"sort"
	"sync"
	"time"

	"github.com/dkeye/callplane/internal/domain"
	"github.com/rs/zerolog/log"
)

// Roster is a threadsafe in-memory member set of one session plus its
// per-member blacklists. Blacklist entries may precede the member's arrival.
type Roster struct {
	mu         sync.RWMutex
	members    map[domain.MemberID]*domain.Member
	audioBlack map[domain.MemberID]struct{}
	videoBlack map[domain.MemberID]struct{}
}

func NewRoster() *Roster {
	return &Roster{
		members:    make(map[domain.MemberID]*domain.Member),
		audioBlack: make(map[domain.MemberID]struct{}),
		videoBlack: make(map[domain.MemberID]struct{}),
	}
}

func (r *Roster) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Add registers a joined member. It reports false when the id is already present.
func (r *Roster) Add(id domain.MemberID, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; ok {
		return false
	}
	_, ab := r.audioBlack[id]
	_, vb := r.videoBlack[id]
	r.members[id] = &domain.Member{ID: id, JoinedAt: at, AudioBlack: ab, VideoBlack: vb}
	log.Info().Str("module", "app.session.roster").Int64("member", int64(id)).Msg("member added")
	return true
}

func (r *Roster) Remove(id domain.MemberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	log.Info().Str("module", "app.session.roster").Int64("member", int64(id)).Msg("member removed")
	return true
}

func (r *Roster) Has(id domain.MemberID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

func (r *Roster) SetNet(id domain.MemberID, st domain.NetStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	if ok {
		m.Net = st
	}
	return ok
}

// Blacklisted reports the current blacklist flag of a media kind for id.
func (r *Roster) Blacklisted(id domain.MemberID, video bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.audioBlack
	if video {
		set = r.videoBlack
	}
	_, ok := set[id]
	return ok
}

// SetBlacklist updates a blacklist flag and reports whether it changed.
func (r *Roster) SetBlacklist(id domain.MemberID, video, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.audioBlack
	if video {
		set = r.videoBlack
	}
	_, was := set[id]
	if was == on {
		return false
	}
	if on {
		set[id] = struct{}{}
	} else {
		delete(set, id)
	}
	if m, ok := r.members[id]; ok {
		if video {
			m.VideoBlack = on
		} else {
			m.AudioBlack = on
		}
	}
	return true
}

// Clear drops members and blacklists.
func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[domain.MemberID]*domain.Member)
	r.audioBlack = make(map[domain.MemberID]struct{})
	r.videoBlack = make(map[domain.MemberID]struct{})
}

func (r *Roster) MembersSnapshot() []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
