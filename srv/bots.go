package srv

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BotSource identifies which bot relayed a chat command
type BotSource string

const (
	BotSourceNightbot BotSource = "nightbot"
	BotSourceMoobot   BotSource = "moobot"
	BotSourceDiscord  BotSource = "discord"
	BotSourceQuery    BotSource = "query"
)

// Headers set by a Discord relay bot. Discord has no native HTTP command
// integration, so the relay forwards the guild it was invoked from.
const (
	HeaderDiscordGuild = "X-Discord-Guild"
	HeaderDiscordUser  = "X-Discord-User"
)

const (
	headerNightbotChannel = "Nightbot-Channel"
	headerNightbotUser    = "Nightbot-User"
	headerMoobotChannel   = "Moobot-channel-name"
	headerMoobotUser      = "Moobot-user-name"
	headerMoobotUserID    = "Moobot-user-id"
)

// BotChannel is where a command came from. Cooldowns are kept per channel.
type BotChannel struct {
	Name   string
	Source BotSource
}

// Key identifies the channel across bots.
func (c *BotChannel) Key() string {
	return string(c.Source) + ":" + c.Name
}

// relay knows how one chat bot names the channel and user behind a command.
type relay struct {
	source  BotSource
	channel func(http.Header) string
	user    func(http.Header) string
	attrs   func(http.Header) []attribute.KeyValue
}

// relays in priority order: the first one naming a channel wins.
var relays = []relay{
	{
		source:  BotSourceNightbot,
		channel: func(h http.Header) string { return nightbotValues(h, headerNightbotChannel).Get("name") },
		user:    nightbotUser,
		attrs:   nightbotAttributes,
	},
	{
		source:  BotSourceMoobot,
		channel: func(h http.Header) string { return strings.ToLower(h.Get(headerMoobotChannel)) },
		user:    func(h http.Header) string { return h.Get(headerMoobotUser) },
		attrs: func(h http.Header) []attribute.KeyValue {
			if id := h.Get(headerMoobotUserID); id != "" {
				return []attribute.KeyValue{attribute.String("bot.user.id", id)}
			}
			return nil
		},
	},
	{
		source:  BotSourceDiscord,
		channel: func(h http.Header) string { return h.Get(HeaderDiscordGuild) },
		user:    func(h http.Header) string { return h.Get(HeaderDiscordUser) },
	},
}

// nightbotValues decodes a query-string encoded Nightbot header, e.g.
// name=night&displayName=Night&provider=twitch&providerId=11785491.
// Malformed headers decode to nothing.
func nightbotValues(h http.Header, name string) url.Values {
	v, err := url.ParseQuery(h.Get(name))
	if err != nil {
		return nil
	}
	return v
}

func nightbotUser(h http.Header) string {
	v := nightbotValues(h, headerNightbotUser)
	if name := v.Get("displayName"); name != "" {
		return name
	}
	return v.Get("name")
}

func nightbotAttributes(h http.Header) []attribute.KeyValue {
	ch := nightbotValues(h, headerNightbotChannel)
	attrs := []attribute.KeyValue{
		attribute.String("bot.channel.display_name", ch.Get("displayName")),
		attribute.String("bot.channel.provider", ch.Get("provider")),
	}
	if level := nightbotValues(h, headerNightbotUser).Get("userLevel"); level != "" {
		attrs = append(attrs, attribute.String("bot.user.user_level", level))
	}
	return attrs
}

// GetBotChannel extracts the channel from relay headers, falling back to
// the ?channel= query parameter.
func GetBotChannel(r *http.Request) *BotChannel {
	for _, rl := range relays {
		if name := rl.channel(r.Header); name != "" {
			return &BotChannel{Name: name, Source: rl.source}
		}
	}
	if ch := r.URL.Query().Get("channel"); ch != "" {
		return &BotChannel{Name: ch, Source: BotSourceQuery}
	}
	return nil
}

// GetBotUser returns the display name of whoever typed the command, or ""
// when no relay says.
func GetBotUser(r *http.Request) string {
	for _, rl := range relays {
		if name := rl.user(r.Header); name != "" {
			return name
		}
	}
	return ""
}

// botAttributes collects span attributes describing who sent a command.
func botAttributes(r *http.Request) []attribute.KeyValue {
	ch := GetBotChannel(r)
	if ch == nil {
		return nil
	}
	attrs := []attribute.KeyValue{
		attribute.String("bot.source", string(ch.Source)),
		attribute.String("bot.channel.name", ch.Name),
		attribute.String("bot.command", path.Base(r.URL.Path)),
	}
	for _, rl := range relays {
		if rl.source == ch.Source && rl.attrs != nil {
			attrs = append(attrs, rl.attrs(r.Header)...)
		}
	}
	if user := GetBotUser(r); user != "" {
		attrs = append(attrs, attribute.String("bot.user.name", user))
	}
	return attrs
}

// AddBotAttributes adds bot header data as span attributes for observability
func AddBotAttributes(r *http.Request) {
	span := trace.SpanFromContext(r.Context())
	if !span.IsRecording() {
		return
	}
	if attrs := botAttributes(r); len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
}
