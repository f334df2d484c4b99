package trunk

import "time"

// Affiliation and patch bookkeeping. These tables are advisory: they feed
// the UI and the grant policy but never drive retunes on their own.

const (
	affiliationMax = 256
	affiliationTTL = 15 * time.Minute
	groupAffilMax  = 512
	groupAffilTTL  = 30 * time.Minute
	patchMax       = 8
	statusTagDepth = 8
)

// Affiliations tracks unit registrations (RID -> last seen).
type Affiliations struct {
	seen map[uint32]time.Time
}

// Touch records activity for a radio ID.
func (a *Affiliations) Touch(rid uint32, now time.Time) {
	if a.seen == nil {
		a.seen = make(map[uint32]time.Time, affiliationMax)
	}
	if _, ok := a.seen[rid]; !ok && len(a.seen) >= affiliationMax {
		a.evictOldest()
	}
	a.seen[rid] = now
}

// Active reports whether the RID has been seen within the TTL.
func (a *Affiliations) Active(rid uint32, now time.Time) bool {
	t, ok := a.seen[rid]
	return ok && now.Sub(t) <= affiliationTTL
}

// Prune drops expired entries.
func (a *Affiliations) Prune(now time.Time) {
	for rid, t := range a.seen {
		if now.Sub(t) > affiliationTTL {
			delete(a.seen, rid)
		}
	}
}

// Len reports the live entry count.
func (a *Affiliations) Len() int { return len(a.seen) }

func (a *Affiliations) evictOldest() {
	var oldest uint32
	var oldestT time.Time
	first := true
	for rid, t := range a.seen {
		if first || t.Before(oldestT) {
			oldest, oldestT = rid, t
			first = false
		}
	}
	if !first {
		delete(a.seen, oldest)
	}
}

type groupAffilKey struct {
	rid uint32
	tg  uint32
}

// GroupAffiliations tracks which talkgroups a unit has joined.
type GroupAffiliations struct {
	seen map[groupAffilKey]time.Time
}

// Touch records a (RID, TG) pairing.
func (g *GroupAffiliations) Touch(rid, tg uint32, now time.Time) {
	if g.seen == nil {
		g.seen = make(map[groupAffilKey]time.Time, groupAffilMax)
	}
	k := groupAffilKey{rid, tg}
	if _, ok := g.seen[k]; !ok && len(g.seen) >= groupAffilMax {
		g.evictOldest()
	}
	g.seen[k] = now
}

// Active reports whether the pairing has been seen within the TTL.
func (g *GroupAffiliations) Active(rid, tg uint32, now time.Time) bool {
	t, ok := g.seen[groupAffilKey{rid, tg}]
	return ok && now.Sub(t) <= groupAffilTTL
}

// Prune drops expired entries.
func (g *GroupAffiliations) Prune(now time.Time) {
	for k, t := range g.seen {
		if now.Sub(t) > groupAffilTTL {
			delete(g.seen, k)
		}
	}
}

// Len reports the live entry count.
func (g *GroupAffiliations) Len() int { return len(g.seen) }

func (g *GroupAffiliations) evictOldest() {
	var oldest groupAffilKey
	var oldestT time.Time
	first := true
	for k, t := range g.seen {
		if first || t.Before(oldestT) {
			oldest, oldestT = k, t
			first = false
		}
	}
	if !first {
		delete(g.seen, oldest)
	}
}

// Patch is one active super-group: a patch (combined audio) or simulselect
// (mirrored audio) of member groups, optionally with its own key context.
type Patch struct {
	SGID     uint32
	IsPatch  bool
	WGIDs    []uint32
	WUIDs    []uint32
	AlgID    byte
	KeyID    uint16
	KeyClear bool // key context explicitly marked clear
}

// Patches holds up to patchMax active super-groups.
type Patches struct {
	active []Patch
}

// Upsert adds or replaces the entry for a super-group. When full, the oldest
// entry is dropped.
func (p *Patches) Upsert(patch Patch) {
	for i := range p.active {
		if p.active[i].SGID == patch.SGID {
			p.active[i] = patch
			return
		}
	}
	if len(p.active) >= patchMax {
		copy(p.active, p.active[1:])
		p.active = p.active[:len(p.active)-1]
	}
	p.active = append(p.active, patch)
}

// Remove clears a super-group.
func (p *Patches) Remove(sgid uint32) {
	for i := range p.active {
		if p.active[i].SGID == sgid {
			p.active = append(p.active[:i], p.active[i+1:]...)
			return
		}
	}
}

// Get looks up a super-group entry.
func (p *Patches) Get(sgid uint32) (Patch, bool) {
	for _, pa := range p.active {
		if pa.SGID == sgid {
			return pa, true
		}
	}
	return Patch{}, false
}

// KeyClearFor reports whether tg is a super-group (or member of one) whose
// key context is marked clear, which overrides the encrypted-grant lockout.
func (p *Patches) KeyClearFor(tg uint32) bool {
	for _, pa := range p.active {
		if !pa.KeyClear {
			continue
		}
		if pa.SGID == tg {
			return true
		}
		for _, w := range pa.WGIDs {
			if w == tg {
				return true
			}
		}
	}
	return false
}

// Len reports the number of active super-groups.
func (p *Patches) Len() int { return len(p.active) }

// StatusTag is one short diagnostic string with its timestamp, kept in a
// small ring for the UI.
type StatusTag struct {
	At  time.Time
	Tag string
}

// StatusTags is the bounded recent-tag ring.
type StatusTags struct {
	tags []StatusTag
}

// Push appends a tag, evicting the oldest past the depth limit.
func (s *StatusTags) Push(tag string, now time.Time) {
	if len(s.tags) >= statusTagDepth {
		copy(s.tags, s.tags[1:])
		s.tags = s.tags[:len(s.tags)-1]
	}
	s.tags = append(s.tags, StatusTag{At: now, Tag: tag})
}

// Recent returns the tags oldest-first.
func (s *StatusTags) Recent() []StatusTag {
	out := make([]StatusTag, len(s.tags))
	copy(out, s.tags)
	return out
}

// Last returns the newest tag, if any.
func (s *StatusTags) Last() (StatusTag, bool) {
	if len(s.tags) == 0 {
		return StatusTag{}, false
	}
	return s.tags[len(s.tags)-1], true
}
