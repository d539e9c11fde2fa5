package model

import (
	"fmt"
	"strings"
)

// Platform identifies a publishing target. The set is closed.
type Platform string

const (
	PlatformDouyin      Platform = "douyin"
	PlatformKuaishou    Platform = "kuaishou"
	PlatformBilibili    Platform = "bilibili"
	PlatformWeibo       Platform = "weibo"
	PlatformZhihu       Platform = "zhihu"
	PlatformTencent     Platform = "tencent"
	PlatformXiaohongshu Platform = "xiaohongshu"
	PlatformYouTube     Platform = "youtube"
	PlatformX           Platform = "x"
	PlatformTelegram    Platform = "telegram"
)

var allPlatforms = []Platform{
	PlatformDouyin,
	PlatformKuaishou,
	PlatformBilibili,
	PlatformWeibo,
	PlatformZhihu,
	PlatformTencent,
	PlatformXiaohongshu,
	PlatformYouTube,
	PlatformX,
	PlatformTelegram,
}

// AllPlatforms returns every known platform in declaration order.
func AllPlatforms() []Platform {
	out := make([]Platform, len(allPlatforms))
	copy(out, allPlatforms)
	return out
}

func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range allPlatforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform: %q", s)
}

func (p Platform) String() string { return string(p) }

// PublishMethod selects how a platform is published to.
type PublishMethod string

const (
	MethodDirectAPI PublishMethod = "direct_api"
	MethodRPA       PublishMethod = "rpa"
)

func ParseMethod(s string) (PublishMethod, error) {
	switch PublishMethod(strings.ToLower(strings.TrimSpace(s))) {
	case MethodDirectAPI:
		return MethodDirectAPI, nil
	case MethodRPA:
		return MethodRPA, nil
	}
	return "", fmt.Errorf("unknown publish method: %q", s)
}
