package fipe

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/licitaware/cotador/internal/extractor"
)

// Section slugs of the public site per vehicle type.
var siteSlugs = map[string]string{
	"carros":    "carro",
	"motos":     "moto",
	"caminhoes": "caminhao",
}

// Fallback crop window when the result table cannot be captured as an
// element: the vertical band the table occupies on the full page.
const (
	cropTop    = 2162
	cropBottom = 3143
)

// Evidence drives the public vehicle-table site and captures the
// priced result as a screenshot. The site's selects are jQuery Chosen
// widgets: setting a value programmatically only takes effect after
// firing chosen:updated, and the code input needs change/blur to load
// the year options.
type Evidence struct {
	browser *extractor.Browser
	siteURL string
	log     zerolog.Logger
}

// NewEvidence wires the capture on the shared browser pool.
func NewEvidence(browser *extractor.Browser, siteURL string, log zerolog.Logger) *Evidence {
	return &Evidence{
		browser: browser,
		siteURL: siteURL,
		log:     log.With().Str("component", "fipe_evidence").Logger(),
	}
}

// Capture returns a PNG of the result table for (codigoFipe, yearLabel).
func (e *Evidence) Capture(ctx context.Context, vehicleType, codigoFipe, yearLabel string) ([]byte, error) {
	slug, ok := siteSlugs[strings.ToLower(strings.TrimSpace(vehicleType))]
	if !ok {
		slug = "carro"
	}

	var tableShot, fullShot []byte
	err := e.browser.Do(ctx,
		chromedp.Navigate(e.siteURL),
		chromedp.WaitVisible(fmt.Sprintf(".tab-veiculos .tab-%s", slug), chromedp.ByQuery),
		// Expand the vehicle-type accordion.
		chromedp.Click(fmt.Sprintf(".tab-veiculos .tab-%s a", slug), chromedp.ByQuery),
		// Switch to the "search by FIPE code" tab.
		chromedp.Click(fmt.Sprintf("a[data-slug=%s-codigo]", slug), chromedp.ByQuery),
		chromedp.WaitVisible(fmt.Sprintf("#selectCodigo%sCodigoFipe", slug), chromedp.ByID),
		// Type the code and fire the events the site listens on.
		chromedp.SetValue(fmt.Sprintf("#selectCodigo%sCodigoFipe", slug), codigoFipe, chromedp.ByID),
		chromedp.Evaluate(fmt.Sprintf(
			`$("#selectCodigo%[1]sCodigoFipe").trigger("change").trigger("blur");`, slug), nil),
		chromedp.Sleep(2*time.Second),
		// Pick the year/fuel option by visible label; Chosen only
		// repaints after chosen:updated.
		chromedp.Evaluate(fmt.Sprintf(`(function() {
			var sel = $("#selectAnoCodigo%[1]s");
			sel.find("option").each(function() {
				if ($(this).text().trim() === %[2]q) { sel.val($(this).val()); }
			});
			sel.trigger("chosen:updated").trigger("change");
		})();`, slug, yearLabel), nil),
		chromedp.Click(fmt.Sprintf("#buttonPesquisar%sPorCodigoFipe", slug), chromedp.ByID),
		chromedp.WaitVisible(fmt.Sprintf("#resultadoConsulta%sFiltros", slug), chromedp.ByID),
		chromedp.Sleep(time.Second),
		chromedp.Screenshot(fmt.Sprintf("#resultadoConsulta%sFiltros", slug), &tableShot, chromedp.ByID),
		chromedp.FullScreenshot(&fullShot, 90),
	)
	if err != nil {
		return nil, fmt.Errorf("captura de evidência FIPE: %w", err)
	}
	if len(tableShot) > 0 {
		return tableShot, nil
	}
	e.log.Warn().Str("codigo_fipe", codigoFipe).Msg("element screenshot empty, cropping full page")
	return cropVertical(fullShot, cropTop, cropBottom)
}

// cropVertical cuts the [top, bottom) horizontal band out of a PNG.
// Pages shorter than the window are returned whole.
func cropVertical(pngBytes []byte, top, bottom int) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return nil, fmt.Errorf("decodificando screenshot: %w", err)
	}
	bounds := img.Bounds()
	if bounds.Dy() <= top {
		return pngBytes, nil
	}
	if bottom > bounds.Max.Y {
		bottom = bounds.Max.Y
	}
	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return pngBytes, nil
	}
	crop := sub.SubImage(image.Rect(bounds.Min.X, top, bounds.Max.X, bottom))
	var out bytes.Buffer
	if err := png.Encode(&out, crop); err != nil {
		return nil, fmt.Errorf("recortando screenshot: %w", err)
	}
	return out.Bytes(), nil
}
