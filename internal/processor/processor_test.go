package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"arstate/internal/assemble"
	"arstate/internal/media"
	"arstate/internal/rasterize"
	"arstate/internal/transcode"
	"arstate/pkg/imgutil"
)

type stubDocument struct {
	pages int
}

func (d stubDocument) NumPages() int { return d.pages }

func (d stubDocument) RenderPage(index int, scale float64) (image.Image, error) {
	return solid(int(50*scale), int(70*scale), color.NRGBA{R: uint8(60 * index), A: 0xff}), nil
}

func (d stubDocument) Close() error { return nil }

type stubDecoder struct {
	pages int
}

func (s stubDecoder) Open(data []byte) (rasterize.Document, error) {
	return stubDocument{pages: s.pages}, nil
}

func newPipeline(pages int) *Pipeline {
	log := zerolog.Nop()
	tr := transcode.New(nil, log)
	return New(
		tr,
		rasterize.New(stubDecoder{pages: pages}, tr, rasterize.DefaultBaseScale, log),
		assemble.New(nil, log),
		log,
	)
}

func TestLoadClassifiesAndCountsIgnored(t *testing.T) {
	dir := t.TempDir()
	pngData := encodePNG(t, solid(4, 4, color.NRGBA{G: 0xff, A: 0xff}))

	writeFile(t, filepath.Join(dir, "b.jpg"), encodeJPEG(t, solid(4, 4, color.NRGBA{B: 0xff, A: 0xff})))
	writeFile(t, filepath.Join(dir, "a.png"), pngData)
	writeFile(t, filepath.Join(dir, "noext"), pngData)
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("hello"))
	writeFile(t, filepath.Join(dir, "sub", "c.pdf"), []byte("%PDF-1.4\n%%EOF\n"))
	writeFile(t, filepath.Join(dir, "converted", "old.png"), pngData)

	sources, ignored, err := Load(context.Background(), []string{dir}, LoadOptions{SkipDir: filepath.Join(dir, "converted")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ignored != 1 {
		t.Fatalf("expected 1 ignored file, got %d", ignored)
	}

	want := []struct {
		name string
		kind media.SourceKind
	}{
		{"a.png", media.SourcePNG},
		{"b.jpg", media.SourceJPEG},
		{"noext", media.SourcePNG},
		{"c.pdf", media.SourceDocument},
	}
	if len(sources) != len(want) {
		t.Fatalf("expected %d sources, got %d", len(want), len(sources))
	}
	for i, w := range want {
		if sources[i].Name != w.name || sources[i].Kind != w.kind {
			t.Fatalf("source %d: got %s (%s), want %s (%s)", i, sources[i].Name, sources[i].Kind, w.name, w.kind)
		}
		if sources[i].ID == "" {
			t.Fatalf("source %d has no id", i)
		}
	}
}

func TestLoadSkipsDotPrefixedDirInsideSkipDir(t *testing.T) {
	dir := t.TempDir()
	pngData := encodePNG(t, solid(4, 4, color.NRGBA{R: 0xff, A: 0xff}))
	writeFile(t, filepath.Join(dir, "keep.png"), pngData)
	writeFile(t, filepath.Join(dir, "..cache", "also.png"), pngData)
	writeFile(t, filepath.Join(dir, "out", "..cache", "stale.png"), pngData)

	sources, _, err := Load(context.Background(), []string{dir}, LoadOptions{SkipDir: filepath.Join(dir, "out")})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var names []string
	for _, src := range sources {
		names = append(names, src.Name)
	}
	if len(names) != 2 || names[0] != "also.png" || names[1] != "keep.png" {
		t.Fatalf("unexpected sources %v", names)
	}
}

func TestIsWithin(t *testing.T) {
	root := filepath.Join("srv", "data")
	cases := []struct {
		path string
		want bool
	}{
		{root, true},
		{filepath.Join(root, "a"), true},
		{filepath.Join(root, "..cache"), true},
		{filepath.Join(root, "..cache", "x"), true},
		{filepath.Join("srv", "other"), false},
		{"srv", false},
	}
	for _, tc := range cases {
		if got := isWithin(tc.path, root); got != tc.want {
			t.Errorf("isWithin(%q, %q) = %v, want %v", tc.path, root, got, tc.want)
		}
	}
}

func TestLoadMissingPath(t *testing.T) {
	_, _, err := Load(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, LoadOptions{})
	if err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestConvertSingleImageIsDirectFile(t *testing.T) {
	src := mustSource(t, "photo.png", encodePNG(t, solid(20, 10, color.NRGBA{R: 0xff, A: 0xff})))

	report, err := newPipeline(1).Convert(context.Background(), []media.Source{src},
		media.Request{Target: media.OutputPNG, Quality: media.Lossless, Scale: 100}, nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if report.Assembly.Archive {
		t.Fatal("expected a direct file")
	}
	if report.Assembly.Name != "photo.png" {
		t.Fatalf("unexpected name %q", report.Assembly.Name)
	}
	if imgutil.Detect(report.Assembly.Data) != imgutil.KindPNG {
		t.Fatal("expected PNG output")
	}
}

func TestConvertMixedBatchBuildsArchive(t *testing.T) {
	sources := []media.Source{
		mustSource(t, "cat.png", encodePNG(t, solid(8, 8, color.NRGBA{R: 0xff, A: 0xff}))),
		mustSource(t, "deck.pdf", []byte("%PDF-1.4")),
	}

	updates := make(chan ProgressUpdate, 64)
	report, err := newPipeline(2).Convert(context.Background(), sources,
		media.Request{Target: media.OutputPNG, Quality: 80, Scale: 50}, updates)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	close(updates)

	if !report.Assembly.Archive || report.Assembly.Name != assemble.BatchArchiveName {
		t.Fatalf("unexpected assembly %q archive=%v", report.Assembly.Name, report.Assembly.Archive)
	}
	want := []string{"cat.png", "deck/page_001.png", "deck/page_002.png"}
	if len(report.Assembly.Entries) != len(want) {
		t.Fatalf("unexpected entries %v", report.Assembly.Entries)
	}
	for i := range want {
		if report.Assembly.Entries[i] != want[i] {
			t.Fatalf("entry %d: got %q, want %q", i, report.Assembly.Entries[i], want[i])
		}
	}

	var total, processed int
	var states []media.State
	for u := range updates {
		total += u.TotalDelta
		processed += u.ProcessedDelta
		if u.State != media.StateIdle {
			states = append(states, u.State)
		}
	}
	if total != 2 || processed != 2 {
		t.Fatalf("progress total=%d processed=%d", total, processed)
	}
	if len(states) != 2 || states[0] != media.StateConverting || states[1] != media.StateDone {
		t.Fatalf("unexpected lifecycle %v", states)
	}
	if report.Summary.Processed != 2 || report.Summary.Errors != 0 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
}

func TestConvertBatchSkipsBrokenSource(t *testing.T) {
	sources := []media.Source{
		mustSource(t, "broken.png", []byte("\x89PNG\r\n\x1a\nnot really")),
		mustSource(t, "fine.jpg", encodeJPEG(t, solid(8, 8, color.NRGBA{G: 0xff, A: 0xff}))),
	}

	report, err := newPipeline(1).Convert(context.Background(), sources,
		media.Request{Target: media.OutputJPG, Quality: 70, Scale: 100}, nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if report.Summary.Errors != 1 || report.Summary.Processed != 1 {
		t.Fatalf("unexpected summary %+v", report.Summary)
	}
	if !media.IsKind(report.Results[0].Err, media.ErrDecode) {
		t.Fatalf("expected decode error for broken source, got %v", report.Results[0].Err)
	}
	if !report.Assembly.Archive || report.Assembly.Name != assemble.BatchArchiveName {
		t.Fatalf("a two-source batch must be an archive, got %q archive=%v", report.Assembly.Name, report.Assembly.Archive)
	}
	if len(report.Assembly.Entries) != 1 || report.Assembly.Entries[0] != "fine.jpg" {
		t.Fatalf("unexpected entries %v", report.Assembly.Entries)
	}
}

func TestConvertBatchKeepsDocumentFolderWhenImageFails(t *testing.T) {
	sources := []media.Source{
		mustSource(t, "broken.png", []byte("\x89PNG\r\n\x1a\nnot really")),
		mustSource(t, "doc.pdf", []byte("%PDF-1.4")),
	}

	updates := make(chan ProgressUpdate, 64)
	report, err := newPipeline(2).Convert(context.Background(), sources,
		media.Request{Target: media.OutputPNG, Quality: 80, Scale: 100}, updates)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	close(updates)

	if report.Assembly.Name != assemble.BatchArchiveName {
		t.Fatalf("unexpected archive name %q", report.Assembly.Name)
	}
	want := []string{"doc/page_001.png", "doc/page_002.png"}
	if len(report.Assembly.Entries) != len(want) {
		t.Fatalf("unexpected entries %v", report.Assembly.Entries)
	}
	for i := range want {
		if report.Assembly.Entries[i] != want[i] {
			t.Fatalf("entry %d: got %q, want %q", i, report.Assembly.Entries[i], want[i])
		}
	}

	var errs int
	for u := range updates {
		errs += u.ErrorDelta
	}
	if errs != 1 {
		t.Fatalf("expected one error update, got %d", errs)
	}
}

func TestConvertSingleBrokenSourceFails(t *testing.T) {
	src := mustSource(t, "broken.jpg", []byte("garbage"))

	updates := make(chan ProgressUpdate, 8)
	_, err := newPipeline(1).Convert(context.Background(), []media.Source{src},
		media.Request{Target: media.OutputPNG, Quality: 90, Scale: 100}, updates)
	if !media.IsKind(err, media.ErrDecode) {
		t.Fatalf("expected decode error, got %v", err)
	}
	close(updates)

	var last media.State
	for u := range updates {
		if u.State != media.StateIdle {
			last = u.State
		}
	}
	if last != media.StateFailed {
		t.Fatalf("final state = %s, want failed", last)
	}
}

func TestConvertFallsBackFromIconForDocuments(t *testing.T) {
	src := mustSource(t, "one.pdf", []byte("%PDF-1.4"))

	report, err := newPipeline(1).Convert(context.Background(), []media.Source{src},
		media.Request{Target: media.OutputICO, Quality: 90, Scale: 100}, nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if report.Assembly.Name != "one.zip" {
		t.Fatalf("unexpected assembly %q", report.Assembly.Name)
	}
	if len(report.Assembly.Entries) != 1 || report.Assembly.Entries[0] != "page_001.png" {
		t.Fatalf("unexpected entries %v", report.Assembly.Entries)
	}
}

func TestEstimateDimensions(t *testing.T) {
	src := mustSource(t, "wide.png", encodePNG(t, solid(200, 100, color.NRGBA{B: 0xff, A: 0xff})))
	p := newPipeline(1)

	snap, err := p.Estimate(context.Background(), []media.Source{src},
		media.Request{Target: media.OutputJPG, Quality: 60, Scale: 25})
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if !snap.HasDimensions || snap.Width != 50 || snap.Height != 25 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Bytes <= 0 {
		t.Fatal("expected a positive size")
	}

	snap, err = p.Estimate(context.Background(), []media.Source{src},
		media.Request{Target: media.OutputICO, Quality: 60, Scale: 25})
	if err != nil {
		t.Fatalf("estimate ico: %v", err)
	}
	if snap.HasDimensions {
		t.Fatal("icon estimates carry no dimensions")
	}
}

func TestWriteAssembly(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := WriteAssembly(dir, media.Assembly{Name: "x.png", Data: []byte("data")})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "data" || filepath.Base(path) != "x.png" {
		t.Fatalf("unexpected output %s: %q", path, got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the output file, found %d entries", len(entries))
	}
}

func mustSource(t *testing.T, name string, data []byte) media.Source {
	t.Helper()
	src, err := media.NewSource(name, "", data)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	return src
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
