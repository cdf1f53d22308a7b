package engine

import "testing"

func TestChannelURL(t *testing.T) {
	tests := []struct {
		id   string
		tab  string
		want string
	}{
		{"UCabc123", "/about", "https://www.youtube.com/channel/UCabc123/about"},
		{"somehandle", "/about", "https://www.youtube.com/@somehandle/about"},
		{"@somehandle", "", "https://www.youtube.com/@somehandle"},
	}
	for _, tt := range tests {
		if got := ChannelURL(tt.id, tt.tab); got != tt.want {
			t.Errorf("ChannelURL(%q, %q) = %q, want %q", tt.id, tt.tab, got, tt.want)
		}
	}
}

func TestUpgradeAvatarURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"standard avatar",
			"https://yt3.ggpht.com/abc=s88-c-k-c0x00ffffff-no-rj",
			"https://yt3.ggpht.com/abc=s800-c-k-c0x00ffffff-no-rj",
		},
		{
			"rewrites last size component",
			"https://yt3.ggpht.com/=s48-x/abc=s176-c-k-no-rj",
			"https://yt3.ggpht.com/=s48-x/abc=s800-c-k-no-rj",
		},
		{
			"no size component passes through",
			"https://yt3.ggpht.com/plain.png",
			"https://yt3.ggpht.com/plain.png",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UpgradeAvatarURL(tt.in, 800); got != tt.want {
				t.Errorf("UpgradeAvatarURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnwrapRedirect(t *testing.T) {
	wrapped := "https://www.youtube.com/redirect?event=channel_about&q=https%3A%2F%2Fexample.com%2Fpage"
	if got := UnwrapRedirect(wrapped); got != "https://example.com/page" {
		t.Errorf("UnwrapRedirect = %q", got)
	}
	direct := "https://twitter.com/someone"
	if got := UnwrapRedirect(direct); got != direct {
		t.Errorf("direct URL changed: %q", got)
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://WWW.Example.COM/shop?x=1", "example.com"},
		{"http://sub.example.com/", "sub.example.com"},
		{"https://example.com", "example.com"},
	}
	for _, tt := range tests {
		if got := NormalizeDomain(tt.in); got != tt.want {
			t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestChannelIDFromHref(t *testing.T) {
	tests := []struct {
		href string
		want string
	}{
		{"/channel/UCabc123", "UCabc123"},
		{"https://www.youtube.com/channel/UCabc123?view=0", "UCabc123"},
		{"/@handle", "handle"},
		{"/@handle/videos", "handle"},
		{"/watch?v=xyz", ""},
	}
	for _, tt := range tests {
		if got := ChannelIDFromHref(tt.href); got != tt.want {
			t.Errorf("ChannelIDFromHref(%q) = %q, want %q", tt.href, got, tt.want)
		}
	}
}

func TestIsChannelID(t *testing.T) {
	if !IsChannelID("UCabc") || IsChannelID("@handle") || IsChannelID("handle") {
		t.Error("IsChannelID misclassifies")
	}
}
