package updater

import (
	"context"
	"strings"

	"langpacks/internal/host"
	"langpacks/internal/project"
)

func (u *Updater) registerHooks() {
	h := u.hooks
	u.hookIDs = append(u.hookIDs,
		h.AddFilter(host.FilterUpdatePlugins, host.DefaultPriority, u.updateFilter(host.TypePlugin)),
		h.AddFilter(host.FilterUpdateThemes, host.DefaultPriority, u.updateFilter(host.TypeTheme)),
		h.AddFilter(host.FilterTranslationsAPI, host.DefaultPriority, u.translationsFilter),
		h.AddFilter(host.FilterTranslationsAPIResult, host.DefaultPriority, u.translationsFilter),
		h.AddAction(host.ActionTransientChanged, host.DefaultPriority, u.onTransientChanged),
		h.AddAction(host.ActionLocaleChanged, host.DefaultPriority, u.onLocaleChanged),
		h.AddAction(host.ActionTranslationsInstalled, host.DefaultPriority, u.onTranslationsInstalled),
	)
}

// updateFilter merges this updater's records into an update transient. Our
// record wins over an upstream one for the same slug and language, and
// overriding projects drop every upstream record for their slug.
func (u *Updater) updateFilter(projectType string) host.FilterFunc {
	return func(ctx context.Context, value any, _ ...any) any {
		transient, ok := value.(*host.UpdateTransient)
		if !ok || transient == nil {
			transient = &host.UpdateTransient{}
		}

		type key struct{ slug, language string }
		var ours []host.TranslationUpdate
		replaced := make(map[key]bool)
		overridden := make(map[string]bool)

		for _, e := range u.snapshot() {
			p := e.project
			if p.Type() != projectType {
				continue
			}
			if p.OverrideUpstream() {
				overridden[p.Slug()] = true
			}
			for _, rec := range p.Updates(ctx, u.state) {
				replaced[key{rec.Slug, rec.Language}] = true
				ours = append(ours, rec)
			}
		}
		if len(ours) == 0 && len(overridden) == 0 {
			return transient
		}

		merged := make([]host.TranslationUpdate, 0, len(transient.Translations)+len(ours))
		for _, rec := range transient.Translations {
			if overridden[rec.Slug] || replaced[key{rec.Slug, rec.Language}] {
				continue
			}
			merged = append(merged, rec)
		}
		out := *transient
		out.Translations = append(merged, ours...)
		return &out
	}
}

// translationsFilter answers translation lookups for overriding projects. With
// nothing to offer, the incoming value passes through when upstream fallback
// is on; otherwise the answer is an empty result.
func (u *Updater) translationsFilter(ctx context.Context, value any, args ...any) any {
	if len(args) == 0 {
		return value
	}
	req, ok := args[0].(host.TranslationsRequest)
	if !ok {
		return value
	}
	e, ok := u.entry(project.ID(normalizeType(req.Type), req.Slug))
	if !ok || !e.project.OverrideUpstream() {
		return value
	}

	if translations := e.project.Translations(ctx); len(translations) > 0 {
		return &host.TranslationsResult{Translations: translations}
	}
	if e.project.UpstreamFallback() {
		return value
	}
	return &host.TranslationsResult{}
}

func (u *Updater) onTransientChanged(ctx context.Context, args ...any) {
	if len(args) == 0 {
		return
	}
	name, _ := args[0].(string)
	if name != host.TransientUpdatePlugins && name != host.TransientUpdateThemes {
		return
	}
	for _, c := range u.Clients() {
		if c.Cache().MaybeClean(ctx, c.CacheKey()) {
			u.logger.Debug("catalog cache cleaned", "api_url", c.URL(), "transient", name)
		}
	}
	u.state.ClearCaches()
}

func (u *Updater) onLocaleChanged(ctx context.Context, args ...any) {
	if len(args) == 0 {
		return
	}
	locale, _ := args[0].(string)
	if locale == "" {
		return
	}
	u.state.ClearCaches()
	for _, e := range u.snapshot() {
		if e.opts.InstallOnLangChange {
			u.install(ctx, e, locale)
		}
	}
}

func (u *Updater) onTranslationsInstalled(context.Context, ...any) {
	u.state.ClearCaches()
}

// normalizeType accepts both "plugin" and "plugins".
func normalizeType(t string) string {
	return strings.TrimSuffix(t, "s")
}
