package broker

import (
	"regexp"
	"strings"
)

// Exchange maps publish routing keys to bound queues under a fixed
// routing strategy. Once declared, an exchange's type never changes.
type Exchange interface {
	Name() string
	Type() string

	// Bind adds the queue to the pattern's binding set. Rebinding the
	// same pair is a no-op.
	Bind(routingKey string, q *Queue)

	// Publish routes a message to every matching bound queue.
	Publish(routingKey string, body []byte)
}

const (
	// ExchangeDirect routes on exact routing-key match.
	ExchangeDirect = "direct"
	// ExchangeTopic routes on AMQP wildcard patterns.
	ExchangeTopic = "topic"
)

type bindings map[string]map[*Queue]struct{}

func (b bindings) add(routingKey string, q *Queue) {
	set, ok := b[routingKey]
	if !ok {
		set = make(map[*Queue]struct{})
		b[routingKey] = set
	}
	set[q] = struct{}{}
}

// DirectExchange delivers to the exact-match binding set only.
type DirectExchange struct {
	name  string
	binds bindings
}

// NewDirectExchange creates a direct exchange.
func NewDirectExchange(name string) *DirectExchange {
	return &DirectExchange{name: name, binds: make(bindings)}
}

func (e *DirectExchange) Name() string { return e.name }
func (e *DirectExchange) Type() string { return ExchangeDirect }

func (e *DirectExchange) Bind(routingKey string, q *Queue) {
	e.binds.add(routingKey, q)
}

func (e *DirectExchange) Publish(routingKey string, body []byte) {
	for q := range e.binds[routingKey] {
		q.Put(e.name, routingKey, body)
	}
}

// TopicExchange delivers to every binding whose pattern matches the
// routing key: "*" matches exactly one dot-separated word, "#" matches
// zero or more words and consumes its own adjacent dots, so "a.#"
// matches both "a" and "a.b.c".
type TopicExchange struct {
	name     string
	binds    bindings
	patterns map[string]*regexp.Regexp
}

// NewTopicExchange creates a topic exchange.
func NewTopicExchange(name string) *TopicExchange {
	return &TopicExchange{
		name:     name,
		binds:    make(bindings),
		patterns: make(map[string]*regexp.Regexp),
	}
}

func (e *TopicExchange) Name() string { return e.name }
func (e *TopicExchange) Type() string { return ExchangeTopic }

func (e *TopicExchange) Bind(routingKey string, q *Queue) {
	e.binds.add(routingKey, q)
}

func (e *TopicExchange) Publish(routingKey string, body []byte) {
	for bind, queues := range e.binds {
		if e.match(bind, routingKey) {
			for q := range queues {
				q.Put(e.name, routingKey, body)
			}
		}
	}
}

// match reports whether the routing key matches the binding pattern.
// Compiled patterns are cached per exchange.
func (e *TopicExchange) match(bind, routingKey string) bool {
	re, ok := e.patterns[bind]
	if !ok {
		re = compileBinding(bind)
		e.patterns[bind] = re
	}
	return re.MatchString(routingKey)
}

// compileBinding translates an AMQP binding pattern into an anchored
// regular expression. Interior "#" segments are rewritten before
// leading and trailing ones so each "#" absorbs its neighbouring dots
// and "zero words" needs no extra separator.
func compileBinding(bind string) *regexp.Regexp {
	expr := regexp.QuoteMeta(bind)
	expr = strings.ReplaceAll(expr, `\*`, `[^.]+`)
	expr = strings.ReplaceAll(expr, `\.#\.`, `\.([^.]+\.)*`)
	expr = strings.ReplaceAll(expr, `#\.`, `([^.]+\.)*`)
	expr = strings.ReplaceAll(expr, `\.#`, `(\.[^.]+)*`)
	if expr == `#` {
		expr = `.*`
	}
	return regexp.MustCompile(`^(?:` + expr + `)$`)
}
