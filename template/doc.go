// Package template renders markup templates through a [cache.TemplateCache].
//
// A [Template] holds a body together with the declared types of its
// globals and the modules it may call. It compiles on first use, storing
// the compiled form in its cache under the template's [lang.Key], so
// templates with equal inputs share one compile:
//
//	t := template.New("Hello ${w}!",
//		template.WithGlobals(lang.GlobalsTypes{"w": cty.String}))
//
//	out, err := t.Render(ctx, map[string]any{"w": "world"})
//
// Changing the body, globals, modules or cache returns the template to
// [Uncompiled].
package template
