package mocks

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"chat-gateway/internal/models"
)

// Emission is one recorded broadcaster call.
type Emission struct {
	Target  string
	Except  string
	Event   string
	Payload any
}

// BroadcasterMock records every emit in order. Expectations are optional:
// calls only go through mock.Mock when ExpectCalls is set.
type BroadcasterMock struct {
	mock.Mock
	ExpectCalls bool

	mu    sync.Mutex
	calls []Emission
}

func (m *BroadcasterMock) record(e Emission) {
	m.mu.Lock()
	m.calls = append(m.calls, e)
	m.mu.Unlock()
}

func (m *BroadcasterMock) EmitToRoom(room, event string, payload any) {
	m.record(Emission{Target: room, Event: event, Payload: payload})
	if m.ExpectCalls {
		m.Called(room, event, payload)
	}
}

func (m *BroadcasterMock) EmitToRoomExcept(room, exceptConnID, event string, payload any) {
	m.record(Emission{Target: room, Except: exceptConnID, Event: event, Payload: payload})
	if m.ExpectCalls {
		m.Called(room, exceptConnID, event, payload)
	}
}

func (m *BroadcasterMock) EmitToUser(userID int, event string, payload any) {
	m.record(Emission{Target: models.UserRoom(userID), Event: event, Payload: payload})
	if m.ExpectCalls {
		m.Called(userID, event, payload)
	}
}

func (m *BroadcasterMock) EmitAll(event string, payload any) {
	m.record(Emission{Target: "*", Event: event, Payload: payload})
	if m.ExpectCalls {
		m.Called(event, payload)
	}
}

// Emissions returns a copy of every recorded call.
func (m *BroadcasterMock) Emissions() []Emission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Emission(nil), m.calls...)
}

// Named returns the recorded calls for one event name.
func (m *BroadcasterMock) Named(event string) []Emission {
	var out []Emission
	for _, e := range m.Emissions() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
