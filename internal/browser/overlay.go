package browser

import (
	"context"

	"github.com/chromedp/chromedp"
)

// dismissScript clicks consent/accept buttons and removes fixed-position
// overlays that would otherwise cover screenshots. It reports how many
// elements it touched; failures are silent inside the page.
const dismissScript = `(() => {
	let touched = 0;
	const accept = /^(accept|accept all|allow|allow all|agree|i agree|got it|ok|okay|dismiss|close|verstanden|accepter|aceptar)$/i;
	for (const btn of document.querySelectorAll('button, [role="button"], a')) {
		const label = (btn.textContent || '').replace(/\s+/g, ' ').trim();
		if (label.length <= 40 && accept.test(label)) {
			try { btn.click(); touched++; } catch (e) {}
			if (touched >= 3) break;
		}
	}
	const overlay = /(cookie|consent|gdpr|banner|modal|popup|overlay|newsletter|subscribe)/i;
	for (const el of document.querySelectorAll('div, section, aside, dialog')) {
		const style = window.getComputedStyle(el);
		if (style.position !== 'fixed' && style.position !== 'sticky') continue;
		const hint = (el.id + ' ' + el.className).toString();
		if (!overlay.test(hint)) continue;
		if (el.offsetHeight < 40) continue;
		try { el.remove(); touched++; } catch (e) {}
		if (touched >= 10) break;
	}
	if (document.body) {
		document.body.style.overflow = '';
	}
	return touched;
})()`

// dismissOverlays returns an action that clears cookie banners and modal
// overlays. It never fails the surrounding extraction; overlay handling is
// best effort.
func dismissOverlays() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var touched int
		if err := chromedp.Evaluate(dismissScript, &touched).Do(ctx); err != nil {
			return nil
		}
		return nil
	})
}
