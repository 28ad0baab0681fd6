package sioclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zyxar/sioclient/engine"
)

var (
	// ErrInvalidEvent indicates an EVENT body that is not ["name", args...].
	ErrInvalidEvent = errors.New("invalid event")
)

var handleType = reflect.TypeOf(Handle(0))

type callback struct {
	fn   reflect.Value
	args []reflect.Type
}

func newCallback(fn interface{}) *callback {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		panic("invalid callback function")
	}
	t := v.Type()
	args := make([]reflect.Type, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		args[i] = t.In(i)
	}
	return &callback{fn: v, args: args}
}

// Call unmarshals data into the callback arguments in order. A Handle
// argument receives h and consumes no data.
func (e *callback) Call(h Handle, data []json.RawMessage) ([]reflect.Value, error) {
	in := make([]reflect.Value, len(e.args))
	for i, typ := range e.args {
		if typ == handleType {
			in[i] = reflect.ValueOf(h)
			continue
		}
		elem := typ
		if typ.Kind() == reflect.Ptr {
			elem = typ.Elem()
		}
		v := reflect.New(elem)
		if len(data) > 0 {
			if err := json.Unmarshal(data[0], v.Interface()); err != nil {
				return nil, err
			}
			data = data[1:]
		}
		if typ.Kind() != reflect.Ptr {
			v = v.Elem()
		}
		in[i] = v
	}
	return e.fn.Call(in), nil
}

// Router is a Sink that dispatches received socket.io events to handlers
// registered by event name, acknowledging events that request it. Every
// notification is then passed on to the next Sink.
type Router struct {
	registry *Registry
	next     Sink

	handlers map[string]*callback
	onError  func(h Handle, err error)
	sync.RWMutex
}

// NewRouter creates a Router passing notifications on to next, which may be nil.
func NewRouter(next Sink) *Router {
	if next == nil {
		next = Discard
	}
	return &Router{
		next:     next,
		handlers: make(map[string]*callback),
	}
}

// Bind sets the registry acks are sent through. Until bound, events asking
// for an ack are reported as errors.
func (rt *Router) Bind(r *Registry) {
	rt.Lock()
	rt.registry = r
	rt.Unlock()
}

// On registers fn for event. Arguments of fn are decoded from the event
// arguments; values fn returns become the ack payload.
func (rt *Router) On(event string, fn interface{}) {
	rt.Lock()
	rt.handlers[event] = newCallback(fn)
	rt.Unlock()
}

// OnError registers fn for events that could not be dispatched.
func (rt *Router) OnError(fn func(h Handle, err error)) {
	rt.Lock()
	rt.onError = fn
	rt.Unlock()
}

// Post implements Sink interface
func (rt *Router) Post(e Event) bool {
	if e.Type == EventReceivedMessage {
		for _, p := range e.Packets {
			if p.Event() != engine.EventTypeEvent {
				continue
			}
			if err := rt.process(e.Handle, p); err != nil {
				rt.fail(e.Handle, err)
			}
		}
	}
	return rt.next.Post(e)
}

func (rt *Router) process(h Handle, p *engine.Packet) error {
	var args []json.RawMessage
	if err := json.Unmarshal(p.Body(), &args); err != nil || len(args) == 0 {
		return ErrInvalidEvent
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return ErrInvalidEvent
	}
	rt.RLock()
	fn, ok := rt.handlers[name]
	registry := rt.registry
	rt.RUnlock()
	if !ok {
		return nil
	}
	out, err := fn.Call(h, args[1:])
	if err != nil {
		return err
	}
	prefix, id := ackID(p)
	if id == "" {
		return nil
	}
	results := make([]interface{}, len(out))
	for i := range out {
		results[i] = out[i].Interface()
	}
	b, err := json.Marshal(results)
	if err != nil {
		return err
	}
	ack := engine.NewPacket(engine.PacketTypeMessage, strconv.Itoa(int(engine.EventTypeAck))+prefix+id+string(b))
	if registry == nil {
		return ErrNoClient
	}
	return registry.Send(registry.ctx, h, ack)
}

func (rt *Router) fail(h Handle, err error) {
	rt.RLock()
	fn, registry := rt.onError, rt.registry
	rt.RUnlock()
	if fn != nil {
		fn(h, err)
		return
	}
	logger := &log.Logger
	if registry != nil {
		logger = &registry.log
	}
	logger.Warn().Err(err).Int("handle", int(h)).Msg("event not dispatched")
}

// ackID splits the header of a message between its type bytes and body into
// namespace prefix ("/ns," or "") and ack id.
func ackID(p *engine.Packet) (prefix, id string) {
	data, body := p.Bytes(), p.Body()
	if len(data) < 2 || body == nil {
		return "", ""
	}
	head := data[2 : len(data)-len(body)]
	if len(head) > 0 && head[0] == '/' {
		i := bytes.IndexByte(head, ',')
		if i < 0 {
			return "", ""
		}
		prefix, head = string(head[:i+1]), head[i+1:]
	}
	for _, b := range head {
		if b < '0' || b > '9' {
			return prefix, ""
		}
	}
	return prefix, string(head)
}
