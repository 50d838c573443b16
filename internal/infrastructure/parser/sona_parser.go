package parser

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"StudyScanner/internal/domain"
	"StudyScanner/internal/scanner"
)

const (
	studyTableSelector = "div.form-horizontal.tasi-form table"
	rowSuffix          = "_RepeaterRow"
	experimentIDParam  = "experiment_id"
)

// ParseStudyListing extracts studies from the participant listing page.
// Relative links are resolved against base. Any repeater row that cannot be
// read fails the whole page, as does a table whose rows no longer follow the
// repeater naming, so a layout change never yields a partial listing.
func ParseStudyListing(r io.Reader, base *url.URL) ([]domain.Study, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	table := doc.Find(studyTableSelector).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: study table %q not found", scanner.ErrNavigation, studyTableSelector)
	}

	var (
		studies  []domain.Study
		rowErr   error
		unknown  int
		repeater int
	)
	table.Find("tbody tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		rowID, _ := row.Attr("id")
		if !strings.HasSuffix(rowID, rowSuffix) {
			if cleanText(row.Text()) != "" || row.Find("a, span").Length() > 0 {
				unknown++
			}
			return true
		}
		repeater++

		study, err := parseRow(row, strings.TrimSuffix(rowID, rowSuffix), base)
		if err != nil {
			rowErr = fmt.Errorf("%w: row %s: %w", scanner.ErrNavigation, rowID, err)
			return false
		}
		studies = append(studies, study)
		return true
	})

	if rowErr != nil {
		return nil, rowErr
	}
	if repeater == 0 && unknown > 0 {
		return nil, fmt.Errorf("%w: study table has %d row(s) but none named *%s", scanner.ErrNavigation, unknown, rowSuffix)
	}
	return studies, nil
}

var errRowIncomplete = errors.New("row is incomplete")

// parseRow reads one repeater row, e.g. ctl00_ContentPlaceHolder1_repStudentStudies_ctl07_RepeaterRow.
func parseRow(row *goquery.Selection, prefix string, base *url.URL) (domain.Study, error) {
	var missing []string
	field := func(suffix string) *goquery.Selection {
		sel := row.Find("#" + prefix + suffix).First()
		if sel.Length() == 0 {
			missing = append(missing, suffix)
		}
		return sel
	}

	name := field("_HyperlinkStudentStudyInfo")
	slot := field("_HyperlinkStudentTimeSlot")
	credits := field("_LabelCredits")
	kind := field("_LabelStudyType")
	if len(missing) > 0 {
		return domain.Study{}, fmt.Errorf("%w: missing %s", errRowIncomplete, strings.Join(missing, ", "))
	}

	href, exists := slot.Attr("href")
	if !exists {
		return domain.Study{}, fmt.Errorf("%w: timeslot link has no href", errRowIncomplete)
	}

	link, id := resolveLink(strings.TrimSpace(href), base)
	if id == "" {
		return domain.Study{}, fmt.Errorf("%w: link %q has no %s", errRowIncomplete, href, experimentIDParam)
	}

	return domain.Study{
		ID:          id,
		Name:        cleanText(name.Text()),
		Link:        link,
		Credits:     cleanText(credits.Text()),
		Description: cleanText(kind.Text()),
	}, nil
}

// resolveLink returns the absolute link and its experiment id.
func resolveLink(href string, base *url.URL) (string, string) {
	parsed, err := url.Parse(href)
	if err != nil {
		return href, ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	return parsed.String(), strings.TrimSpace(parsed.Query().Get(experimentIDParam))
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
