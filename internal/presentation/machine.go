// Package presentation holds the screen state machine every client runs
// against its bound room.
package presentation

import (
	"math"
	"strings"

	"github.com/npezzotti/go-reveal/internal/types"
)

type Screen string

const (
	ScreenLogin         Screen = "login"
	ScreenAdminHome     Screen = "admin_home"
	ScreenWaitingRoom   Screen = "waiting_room"
	ScreenSyncPending   Screen = "sync_pending"
	ScreenCapturingNote Screen = "capturing_note"
	ScreenWaitingForCue Screen = "waiting_for_cue"
	ScreenRevealed      Screen = "revealed"
)

type Role string

const (
	RolePerformer Role = "performer"
	RoleAdmin     Role = "admin"
	RoleSpectator Role = "spectator"
)

// RoleFor maps a session role onto the presentation role.
func RoleFor(r types.Role) Role {
	switch r {
	case types.RoleAdmin:
		return RoleAdmin
	case types.RolePerformer:
		return RolePerformer
	default:
		return RoleSpectator
	}
}

type EffectKind string

const (
	EffectArm        EffectKind = "arm"
	EffectSubmitNote EffectKind = "submit_note"
	EffectPlay       EffectKind = "play"
	EffectReload     EffectKind = "reload"
	EffectPulse      EffectKind = "pulse"
)

// Effect is work the client must carry out after a transition.
type Effect struct {
	Kind    EffectKind
	Note    string
	VideoId string
	StartAt int
}

// FaceDownBeta is the tilt, in degrees, past which a device counts as
// turned over.
const FaceDownBeta = 160

// Machine is the per-client screen state machine. It is not safe for
// concurrent use; clients drive it from their single event loop.
type Machine struct {
	role        Role
	screen      Screen
	played      bool
	lastVersion int
}

// NewMachine starts spectators on the waiting room and everyone else on
// the login screen.
func NewMachine(role Role) *Machine {
	m := &Machine{role: role}
	m.restart()
	return m
}

func (m *Machine) restart() {
	m.played = false
	m.lastVersion = 0
	if m.role == RoleSpectator {
		m.screen = ScreenWaitingRoom
		return
	}
	m.screen = ScreenLogin
}

func (m *Machine) Screen() Screen { return m.screen }

func (m *Machine) Role() Role { return m.role }

func (m *Machine) Login(role Role) []Effect {
	if m.screen != ScreenLogin {
		return nil
	}

	switch role {
	case RolePerformer:
		m.role = role
		m.screen = ScreenWaitingRoom
	case RoleAdmin:
		m.role = role
		m.screen = ScreenAdminHome
	}
	return nil
}

func (m *Machine) OpenNote() []Effect {
	if m.screen != ScreenWaitingRoom || m.role == RoleAdmin {
		return nil
	}

	m.screen = ScreenCapturingNote
	if m.role == RolePerformer {
		return []Effect{{Kind: EffectArm}}
	}
	return nil
}

func (m *Machine) SubmitNote(text string) []Effect {
	if m.screen != ScreenCapturingNote {
		return nil
	}

	if m.role != RolePerformer {
		m.screen = ScreenWaitingForCue
		return nil
	}

	m.screen = ScreenWaitingRoom
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []Effect{{Kind: EffectSubmitNote, Note: text}}
}

// Observe applies a pushed room state. Performers never act on pushes and
// a nil state, meaning the room is gone, changes nothing.
func (m *Machine) Observe(state *types.RoomState) []Effect {
	if m.role == RolePerformer {
		return nil
	}
	if state == nil {
		// A recreated room starts over at version 1.
		m.lastVersion = 0
		return nil
	}
	if state.Version != 0 && state.Version < m.lastVersion {
		return nil
	}
	m.lastVersion = state.Version

	switch state.Status {
	case types.RoomStatusArmed:
		if m.screen == ScreenWaitingRoom {
			m.screen = ScreenSyncPending
		}
	case types.RoomStatusRevealed:
		if m.screen == ScreenLogin || m.screen == ScreenAdminHome {
			return nil
		}
		m.screen = ScreenRevealed
		if m.played || state.VideoId == nil {
			return nil
		}
		m.played = true
		return []Effect{{Kind: EffectPlay, VideoId: *state.VideoId, StartAt: state.StartAt}}
	case types.RoomStatusIdle:
		if m.screen == ScreenRevealed || m.screen == ScreenWaitingForCue {
			m.restart()
			return []Effect{{Kind: EffectReload}}
		}
	}
	return nil
}

// SyncComplete is fired by the client's own timer once the sync screen
// has been shown.
func (m *Machine) SyncComplete() []Effect {
	if m.screen == ScreenSyncPending {
		m.screen = ScreenWaitingForCue
	}
	return nil
}

// Orientation reports the device front-back tilt in degrees. It only ever
// produces a cosmetic pulse; the room status alone decides the reveal.
func (m *Machine) Orientation(beta float64) []Effect {
	if m.screen == ScreenWaitingForCue && math.Abs(beta) > FaceDownBeta {
		return []Effect{{Kind: EffectPulse}}
	}
	return nil
}
