package gatt

import (
	"fmt"

	"github.com/google/uuid"
)

// Registry is the immutable attribute table of one primary service.
type Registry struct {
	service uuid.UUID
	chars   []Characteristic
	handles map[Handle]attrRef
}

type attrRef struct {
	id      CharID
	control bool
}

// NewRegistry validates chars and assigns attribute handles. The service
// declaration takes handle 1; each characteristic takes a declaration handle,
// a value handle and, if notify-capable, a control handle.
func NewRegistry(service uuid.UUID, chars ...Characteristic) (*Registry, error) {
	seen := map[uuid.UUID]string{service: "service"}
	r := &Registry{
		service: service,
		chars:   make([]Characteristic, len(chars)),
		handles: make(map[Handle]attrRef),
	}

	next := Handle(2)
	for i, c := range chars {
		if prev, ok := seen[c.UUID]; ok {
			return nil, fmt.Errorf("%w: %s used by %s and %s", ErrDuplicateUUID, c.UUID, prev, c.Name)
		}
		seen[c.UUID] = c.Name

		if c.Props.Has(PropRead) && c.Read == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingReadHandler, c.Name)
		}

		c.ValueHandle = next + 1
		next += 2
		r.handles[c.ValueHandle] = attrRef{id: CharID(i)}
		c.ControlHandle = 0
		if c.Props.Has(PropNotify) {
			c.ControlHandle = next
			next++
			r.handles[c.ControlHandle] = attrRef{id: CharID(i), control: true}
		}
		r.chars[i] = c
	}
	return r, nil
}

// Service returns the primary service UUID.
func (r *Registry) Service() uuid.UUID {
	return r.service
}

// Len returns the number of characteristics.
func (r *Registry) Len() int {
	return len(r.chars)
}

// Characteristic returns the descriptor for id.
func (r *Registry) Characteristic(id CharID) Characteristic {
	return r.chars[id]
}

// Characteristics returns a copy of all descriptors in registry order.
func (r *Registry) Characteristics() []Characteristic {
	return append([]Characteristic(nil), r.chars...)
}

// NewServer returns a Server with every subscription cleared.
func (r *Registry) NewServer() *Server {
	return &Server{
		reg:        r,
		subscribed: make([]bool, len(r.chars)),
	}
}

// Server answers attribute operations for one connection.
// Not safe for concurrent use; the session loop owns it.
type Server struct {
	reg        *Registry
	subscribed []bool
}

// Registry returns the table the server answers from.
func (s *Server) Registry() *Registry {
	return s.reg
}

// Read returns the attribute value at handle h starting at offset.
// An offset at or past the end of the value yields an empty result.
func (s *Server) Read(h Handle, offset int) ([]byte, error) {
	ref, ok := s.reg.handles[h]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%04x", ErrInvalidHandle, h)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
	}

	if ref.control {
		v := controlDisabled
		if s.subscribed[ref.id] {
			v = controlEnabled
		}
		return sliceFrom(v, offset), nil
	}

	c := s.reg.chars[ref.id]
	if !c.Props.Has(PropRead) {
		return nil, fmt.Errorf("%w: %s", ErrReadNotPermitted, c.Name)
	}
	return c.Read(offset), nil
}

// Write dispatches data to the attribute at handle h. A write to a control
// handle is the only way to change a subscription: byte 0 equal to 1 means
// subscribed, anything else (including an empty write) means unsubscribed.
func (s *Server) Write(h Handle, offset int, data []byte) error {
	ref, ok := s.reg.handles[h]
	if !ok {
		return fmt.Errorf("%w: 0x%04x", ErrInvalidHandle, h)
	}
	if offset < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
	}

	if ref.control {
		s.subscribed[ref.id] = offset == 0 && len(data) > 0 && data[0] == 1
		return nil
	}

	c := s.reg.chars[ref.id]
	if !c.Props.Has(PropWrite) {
		return fmt.Errorf("%w: %s", ErrWriteNotPermitted, c.Name)
	}
	if c.Write != nil {
		c.Write(offset, data)
	}
	return nil
}

// Subscribed reports whether the peer enabled notifications for id.
func (s *Server) Subscribed(id CharID) bool {
	if int(id) < 0 || int(id) >= len(s.subscribed) {
		return false
	}
	return s.subscribed[id]
}

// Notify builds a notification for id, or returns nil if the characteristic
// cannot notify or the peer has not subscribed.
func (s *Server) Notify(id CharID, value []byte) *Notification {
	if !s.Subscribed(id) {
		return nil
	}
	c := s.reg.chars[id]
	if !c.Props.Has(PropNotify) {
		return nil
	}
	return &Notification{
		ID:     id,
		Handle: c.ValueHandle,
		Value:  append([]byte(nil), value...),
	}
}

func sliceFrom(v []byte, offset int) []byte {
	if offset >= len(v) {
		return []byte{}
	}
	return append([]byte(nil), v[offset:]...)
}
