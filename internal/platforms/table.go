package platforms

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"multi-platform-rpa/internal/model"
)

// Entry describes how one platform is published to.
type Entry struct {
	Method model.PublishMethod `yaml:"method"`
	URL    string              `yaml:"url,omitempty"`    // upload page, RPA only
	Script string              `yaml:"script,omitempty"` // script file name, RPA only
}

// Table maps every platform to its entry.
type Table map[model.Platform]Entry

func rpa(url string, p model.Platform) Entry {
	return Entry{Method: model.MethodRPA, URL: url, Script: string(p) + ".js"}
}

var direct = Entry{Method: model.MethodDirectAPI}

// Default returns the built-in table.
func Default() Table {
	return Table{
		model.PlatformDouyin:      rpa("https://creator.douyin.com/creator-micro/content/upload", model.PlatformDouyin),
		model.PlatformKuaishou:    rpa("https://cp.kuaishou.com/article/publish/video", model.PlatformKuaishou),
		model.PlatformBilibili:    rpa("https://member.bilibili.com/v2#/upload/video/frame", model.PlatformBilibili),
		model.PlatformWeibo:       rpa("https://weibo.com/compose/", model.PlatformWeibo),
		model.PlatformZhihu:       rpa("https://zhuanlan.zhihu.com/write", model.PlatformZhihu),
		model.PlatformTencent:     direct,
		model.PlatformXiaohongshu: direct,
		model.PlatformYouTube:     direct,
		model.PlatformX:           direct,
		model.PlatformTelegram:    direct,
	}
}

// Validate checks that every known platform has a usable entry and that
// the table names no unknown platform.
func (t Table) Validate() error {
	var errs []error
	for _, p := range model.AllPlatforms() {
		e, ok := t[p]
		if !ok {
			errs = append(errs, fmt.Errorf("%s: missing entry", p))
			continue
		}
		switch e.Method {
		case model.MethodRPA:
			if e.URL == "" {
				errs = append(errs, fmt.Errorf("%s: rpa entry without url", p))
			}
			if e.Script == "" {
				errs = append(errs, fmt.Errorf("%s: rpa entry without script", p))
			}
		case model.MethodDirectAPI:
		default:
			errs = append(errs, fmt.Errorf("%s: unknown method %q", p, e.Method))
		}
	}
	known := model.AllPlatforms()
	for p := range t {
		if !lo.Contains(known, p) {
			errs = append(errs, fmt.Errorf("%s: not a known platform", p))
		}
	}
	return errors.Join(errs...)
}

func (t Table) Lookup(p model.Platform) (Entry, bool) {
	e, ok := t[p]
	return e, ok
}

// ByMethod lists the platforms published with m, sorted.
func (t Table) ByMethod(m model.PublishMethod) []model.Platform {
	out := lo.Keys(lo.PickBy(t, func(_ model.Platform, e Entry) bool { return e.Method == m }))
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Load returns the default table with the entries of the YAML file at
// path merged over it. An empty path returns the defaults. The merged
// table is validated before it is returned.
//
//	bilibili:
//	  method: rpa
//	  url: https://member.bilibili.com/platform/upload/video/frame
//	tencent:
//	  method: rpa
//	  url: https://channels.weixin.qq.com/platform/post/create
//	  script: tencent.js
func Load(path string) (Table, error) {
	t := Default()
	if path == "" {
		return t, t.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platforms file: %w", err)
	}
	var raw map[string]Entry
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse platforms file: %w", err)
	}
	for name, override := range raw {
		p, err := model.ParsePlatform(name)
		if err != nil {
			return nil, err
		}
		e := t[p]
		if override.Method != "" {
			m, err := model.ParseMethod(string(override.Method))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
			e.Method = m
		}
		if override.URL != "" {
			e.URL = override.URL
		}
		if override.Script != "" {
			e.Script = override.Script
		}
		if e.Method == model.MethodRPA && e.Script == "" {
			e.Script = string(p) + ".js"
		}
		t[p] = e
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid platform table: %w", err)
	}
	return t, nil
}
