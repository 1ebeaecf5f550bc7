package srv

import (
	"net/http"
	"testing"
)

func newBotRequest(target string, headers map[string]string) *http.Request {
	req, _ := http.NewRequest("GET", "http://example.com"+target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestGetBotChannel(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		queryParam string
		wantName   string
		wantSource BotSource
		wantNil    bool
	}{
		{
			name:    "no headers or query",
			wantNil: true,
		},
		{
			name:       "nightbot header",
			headers:    map[string]string{"Nightbot-Channel": "name=slimesalad&displayName=SlimeSalad&provider=twitch&providerId=11785491"},
			wantName:   "slimesalad",
			wantSource: BotSourceNightbot,
		},
		{
			name:    "nightbot header without a name",
			headers: map[string]string{"Nightbot-Channel": "provider=youtube"},
			wantNil: true,
		},
		{
			name:       "malformed nightbot header falls through",
			headers:    map[string]string{"Nightbot-Channel": "name=%zz", HeaderDiscordGuild: "castle-paradox"},
			wantName:   "castle-paradox",
			wantSource: BotSourceDiscord,
		},
		{
			name:       "moobot header is lowercased",
			headers:    map[string]string{"Moobot-channel-name": "SomeStreamer"},
			wantName:   "somestreamer",
			wantSource: BotSourceMoobot,
		},
		{
			name:       "query param",
			queryParam: "testchannel",
			wantName:   "testchannel",
			wantSource: BotSourceQuery,
		},
		{
			name:       "nightbot takes precedence over moobot",
			headers:    map[string]string{"Nightbot-Channel": "name=nightbotch", "Moobot-channel-name": "moobotch"},
			wantName:   "nightbotch",
			wantSource: BotSourceNightbot,
		},
		{
			name:       "discord relay takes precedence over query",
			headers:    map[string]string{HeaderDiscordGuild: "slime-salad"},
			queryParam: "querychannel",
			wantName:   "slime-salad",
			wantSource: BotSourceDiscord,
		},
		{
			name:       "moobot takes precedence over discord",
			headers:    map[string]string{"Moobot-channel-name": "MoobotChannel", HeaderDiscordGuild: "guild"},
			wantName:   "moobotchannel",
			wantSource: BotSourceMoobot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/api/whatsnew"
			if tt.queryParam != "" {
				target += "?channel=" + tt.queryParam
			}

			got := GetBotChannel(newBotRequest(target, tt.headers))

			if tt.wantNil {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected non-nil result")
			}
			if got.Name != tt.wantName || got.Source != tt.wantSource {
				t.Errorf("got %s, want %s:%s", got.Key(), tt.wantSource, tt.wantName)
			}
		})
	}
}

func TestGetBotUser(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{"no headers", nil, ""},
		{"nightbot display name", map[string]string{"Nightbot-User": "name=viewer&displayName=ViewerDisplay&provider=twitch"}, "ViewerDisplay"},
		{"nightbot name only", map[string]string{"Nightbot-User": "name=viewer&provider=twitch"}, "viewer"},
		{"moobot user", map[string]string{"Moobot-user-name": "MoobotViewer"}, "MoobotViewer"},
		{"discord relay user", map[string]string{HeaderDiscordUser: "TMC"}, "TMC"},
		{"nightbot before discord", map[string]string{"Nightbot-User": "name=nbuser", HeaderDiscordUser: "TMC"}, "nbuser"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetBotUser(newBotRequest("/api/whatsnew", tt.headers)); got != tt.expected {
				t.Errorf("GetBotUser() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestBotAttributes(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		headers map[string]string
		want    map[string]string
	}{
		{
			name:   "nightbot",
			target: "/api/whatsnew",
			headers: map[string]string{
				"Nightbot-Channel": "name=test&displayName=Test&provider=twitch",
				"Nightbot-User":    "name=viewer&displayName=Viewer&userLevel=moderator",
			},
			want: map[string]string{
				"bot.source":               "nightbot",
				"bot.channel.name":         "test",
				"bot.command":              "whatsnew",
				"bot.channel.display_name": "Test",
				"bot.channel.provider":     "twitch",
				"bot.user.user_level":      "moderator",
				"bot.user.name":            "Viewer",
			},
		},
		{
			name:   "moobot",
			target: "/api/commits",
			headers: map[string]string{
				"Moobot-channel-name": "testchannel",
				"Moobot-user-name":    "testuser",
				"Moobot-user-id":      "12345",
			},
			want: map[string]string{
				"bot.source":    "moobot",
				"bot.command":   "commits",
				"bot.user.id":   "12345",
				"bot.user.name": "testuser",
			},
		},
		{
			name:    "discord",
			target:  "/api/release?name=hrodvitnir",
			headers: map[string]string{HeaderDiscordGuild: "guild", HeaderDiscordUser: "James"},
			want: map[string]string{
				"bot.source":       "discord",
				"bot.channel.name": "guild",
				"bot.command":      "release",
				"bot.user.name":    "James",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make(map[string]string)
			for _, kv := range botAttributes(newBotRequest(tt.target, tt.headers)) {
				got[string(kv.Key)] = kv.Value.AsString()
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}

	if attrs := botAttributes(newBotRequest("/api/whatsnew", nil)); attrs != nil {
		t.Errorf("expected no attributes without bot headers, got %v", attrs)
	}
}

func TestAddBotAttributes_NoSpan(t *testing.T) {
	// Without a recording span there is nothing to annotate.
	AddBotAttributes(newBotRequest("/api/whatsnew", map[string]string{
		"Nightbot-Channel": "name=test&provider=twitch",
	}))
}

func TestBotChannelKey(t *testing.T) {
	ch := &BotChannel{Name: "guild", Source: BotSourceDiscord}
	if ch.Key() != "discord:guild" {
		t.Errorf("Key() = %q, want discord:guild", ch.Key())
	}
}
