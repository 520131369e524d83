package stages

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/Mdwiki-TD/svg-translate-web/internal/domain"
	"github.com/Mdwiki-TD/svg-translate-web/internal/pipeline"
	"github.com/Mdwiki-TD/svg-translate-web/internal/repo"
	"github.com/Mdwiki-TD/svg-translate-web/internal/wiki"
)

const sampleSVG = `<svg xmlns="http://www.w3.org/2000/svg">
<switch>
<text systemLanguage="ar" x="5" y="10">مرحبا</text>
<text x="5" y="10">Hello</text>
</switch>
<switch>
<text x="5" y="30"><tspan>World</tspan></text>
</switch>
</svg>`

const sampleWikitext = `== Flu prevalence ==
{{SVGLanguages|Flu_prevalence.svg}}
*'''Translate''': https://svgtranslate.toolforge.org/File:Flu_prevalence.svg
{{owidslidersrcs
| file1 = File:Flu prevalence.svg !
| file2 = File:Flu deaths.svg !
| file1dup = File:Flu prevalence.svg !
}}`

// fakeWiki — подменяемый клиент вики-API.
type fakeWiki struct {
	mu         sync.Mutex
	files      map[string]string // title → содержимое
	downloads  []string
	uploads    []string
	failTitles map[string]bool
	uploadErr  error
}

func (w *fakeWiki) PageText(ctx context.Context, title string) (string, error) {
	if content, ok := w.files[title]; ok {
		return content, nil
	}
	return "", wiki.ErrPageNotFound
}

func (w *fakeWiki) DownloadFile(ctx context.Context, title, dir string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failTitles[title] {
		return "", errors.New("download refused")
	}
	content, ok := w.files[title]
	if !ok {
		return "", wiki.ErrPageNotFound
	}
	path := filepath.Join(dir, filepath.Base(title))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	w.downloads = append(w.downloads, title)
	return path, nil
}

func (w *fakeWiki) Upload(ctx context.Context, filename, path, comment, token string) (*wiki.UploadResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.uploadErr != nil {
		return nil, w.uploadErr
	}
	w.uploads = append(w.uploads, filename)
	return &wiki.UploadResult{Filename: filename}, nil
}

// nopExecer — Execer, которому всё равно.
type nopExecer struct{}

func (nopExecer) Exec(ctx context.Context, sql string, args ...any) (int64, error) { return 1, nil }
func (nopExecer) Query(ctx context.Context, sql string, scan func(rows pgx.Rows) error, args ...any) error {
	return nil
}

func testDeps(w *fakeWiki) Deps {
	return Deps{
		Wiki:   w,
		Store:  repo.NewStore(nopExecer{}),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func testState(t *testing.T, title string) *pipeline.State {
	t.Helper()
	task := &domain.Task{ID: "t1", Title: title, Args: map[string]any{}}
	return pipeline.NewState(task, t.TempDir())
}

// --- Initialize ---

func TestInitializeStageCreatesWorkDir(t *testing.T) {
	state := testState(t, "Flu.svg")
	state.WorkDir = filepath.Join(state.WorkDir, "nested", "dir")

	stage := &InitializeStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if info, err := os.Stat(state.WorkDir); err != nil || !info.IsDir() {
		t.Errorf("work dir not created: %v", err)
	}
}

func TestInitializeStageEmptyTitle(t *testing.T) {
	state := testState(t, "")

	stage := &InitializeStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), state); err == nil {
		t.Fatal("expected error for empty title")
	}
}

// --- Text ---

func TestTextStageFetchesWikitext(t *testing.T) {
	w := &fakeWiki{files: map[string]string{"Template:OWID/Flu": sampleWikitext}}
	state := testState(t, "Template:OWID/Flu")

	stage := &TextStage{deps: testDeps(w)}
	if err := stage.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if state.Text != sampleWikitext {
		t.Error("wikitext not captured")
	}
}

func TestTextStageMissingPage(t *testing.T) {
	state := testState(t, "Template:OWID/Nope")

	stage := &TextStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), state); err == nil {
		t.Fatal("expected error for missing page")
	}
}

func TestTextStageEmptyWikitext(t *testing.T) {
	w := &fakeWiki{files: map[string]string{"Template:OWID/Empty": ""}}
	state := testState(t, "Template:OWID/Empty")

	stage := &TextStage{deps: testDeps(w)}
	if err := stage.Execute(context.Background(), state); err == nil {
		t.Fatal("expected error for empty wikitext")
	}
}

// --- Titles ---

func TestTitlesStageExtractsFromWikitext(t *testing.T) {
	state := testState(t, "Template:OWID/Flu")
	state.Text = sampleWikitext

	stage := &TitlesStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if state.MainFile != "Flu prevalence.svg" {
		t.Errorf("main file = %q", state.MainFile)
	}
	want := []string{"Flu prevalence.svg", "Flu deaths.svg"}
	if len(state.Titles) != len(want) {
		t.Fatalf("titles = %v, want %v", state.Titles, want)
	}
	for i := range want {
		if state.Titles[i] != want[i] {
			t.Errorf("titles[%d] = %q, want %q", i, state.Titles[i], want[i])
		}
	}
	if got := state.Messages[domain.StageTitles]; got != "Found 2 titles" {
		t.Errorf("stage message = %q", got)
	}
}

func TestTitlesStageManualMainTitleAndExtras(t *testing.T) {
	state := testState(t, "Template:OWID/Flu")
	state.Text = sampleWikitext
	state.Task.Args["main_title"] = "File:Manual_choice.svg"
	state.Task.Args["titles"] = []any{"Extra.svg", "Flu deaths.svg", ""}

	stage := &TitlesStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if state.MainFile != "Manual choice.svg" {
		t.Errorf("main file = %q, manual override lost", state.MainFile)
	}
	// Extra.svg добавлен, дубликат Flu deaths.svg — нет.
	want := []string{"Flu prevalence.svg", "Flu deaths.svg", "Extra.svg"}
	if len(state.Titles) != len(want) {
		t.Fatalf("titles = %v, want %v", state.Titles, want)
	}
}

func TestTitlesStageAppliesLimit(t *testing.T) {
	state := testState(t, "Template:OWID/Flu")
	state.Text = sampleWikitext
	state.Task.Args["titles_limit"] = float64(1)

	stage := &TitlesStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if len(state.Titles) != 1 || state.Titles[0] != "Flu prevalence.svg" {
		t.Errorf("titles = %v, want only first", state.Titles)
	}
	if got := state.Messages[domain.StageTitles]; got != "Found 2 titles, use only 1" {
		t.Errorf("stage message = %q", got)
	}
}

func TestTitlesStageFailsWithoutMainTitle(t *testing.T) {
	state := testState(t, "Template:OWID/Flu")
	state.Text = `{{owidslidersrcs | file1 = File:Solo.svg !}}`

	stage := &TitlesStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), state); err == nil {
		t.Fatal("expected error when no main title declared")
	}
}

func TestTitlesStageFailsWithoutTitles(t *testing.T) {
	state := testState(t, "Template:OWID/Flu")
	state.Text = `{{SVGLanguages|Solo.svg}}`

	stage := &TitlesStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), state); err == nil {
		t.Fatal("expected error when group has no files")
	}
}

func TestFindMainTitle(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"svglanguages", `{{SVGLanguages|Flu_rate.svg}}`, "Flu rate.svg"},
		{"translate line", "*'''Translate''': https://svgtranslate.toolforge.org/File:Flu_rate.svg", "Flu rate.svg"},
		{"svglanguages wins", sampleWikitext, "Flu prevalence.svg"},
		{"none", "== Nothing here ==", ""},
	}
	for _, tc := range cases {
		if got := FindMainTitle(tc.text); got != tc.want {
			t.Errorf("%s: FindMainTitle = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestExtractTitlesIgnoresOtherTemplates(t *testing.T) {
	text := `{{Information | file = File:Unrelated.svg }}
{{owidslidersrcs | a = File:One.svg ! | b = File:Two.svg !}}`

	got := ExtractTitles(text)
	want := []string{"One.svg", "Two.svg"}
	if len(got) != len(want) {
		t.Fatalf("titles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("titles[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRefToTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"./Nested.svg", "Nested.svg"},
		{"images/Sub.png", "Sub.png"},
		{"Plain.svg", "Plain.svg"},
		{"https://example.com/x.svg", ""},
		{"http://example.com/x.svg", ""},
	}
	for _, tc := range cases {
		if got := refToTitle(tc.in); got != tc.want {
			t.Errorf("refToTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// --- Translations ---

func TestExtractTranslations(t *testing.T) {
	got := ExtractTranslations(sampleSVG)

	ar, ok := got["ar"]
	if !ok {
		t.Fatalf("expected arabic translations, got %v", got)
	}
	if ar["Hello"] != "مرحبا" {
		t.Errorf(`ar["Hello"] = %q`, ar["Hello"])
	}
	// Второй switch без переводов в результат не попадает.
	if len(got) != 1 {
		t.Errorf("expected 1 language, got %d", len(got))
	}
}

func TestExtractTranslationsStripsNestedTags(t *testing.T) {
	svg := `<switch>
<text systemLanguage="fr"><tspan>Bonjour</tspan></text>
<text><tspan>Hello</tspan></text>
</switch>`
	got := ExtractTranslations(svg)
	if got["fr"]["Hello"] != "Bonjour" {
		t.Errorf("unexpected result %v", got)
	}
}

func TestTranslationsStageDownloadsMainFile(t *testing.T) {
	w := &fakeWiki{files: map[string]string{"Flu.svg": sampleSVG}}
	state := testState(t, "Template:OWID/Flu")
	state.MainFile = "Flu.svg"

	stage := &TranslationsStage{deps: testDeps(w)}
	if err := stage.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if state.MainText != sampleSVG {
		t.Error("main svg text not captured")
	}
	if _, ok := state.Files["Flu.svg"]; !ok {
		t.Error("downloaded main file not recorded")
	}
	if state.Translations["ar"]["Hello"] != "مرحبا" {
		t.Errorf("translations = %v", state.Translations)
	}
}

func TestTranslationsStageArgsOverride(t *testing.T) {
	w := &fakeWiki{files: map[string]string{"Flu.svg": sampleSVG}}
	state := testState(t, "Template:OWID/Flu")
	state.MainFile = "Flu.svg"
	state.Task.Args["translations"] = map[string]any{
		"ar": map[string]any{"Hello": "أهلا"},
		"fr": map[string]any{"Hello": "Bonjour"},
	}

	stage := &TranslationsStage{deps: testDeps(w)}
	if err := stage.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	// Аргументы задачи перекрывают извлечённое из файла.
	if state.Translations["ar"]["Hello"] != "أهلا" {
		t.Errorf("args should override file: %v", state.Translations["ar"])
	}
	if state.Translations["fr"]["Hello"] != "Bonjour" {
		t.Errorf("missing args language: %v", state.Translations)
	}
}

func TestTranslationsStageFailsWithoutTranslations(t *testing.T) {
	w := &fakeWiki{files: map[string]string{"Empty.svg": "<svg></svg>"}}
	state := testState(t, "Template:OWID/Flu")
	state.MainFile = "Empty.svg"

	stage := &TranslationsStage{deps: testDeps(w)}
	if err := stage.Execute(context.Background(), state); err == nil {
		t.Fatal("expected error when no translations exist")
	}
}

func TestTranslationsStageRejectsNonSVG(t *testing.T) {
	w := &fakeWiki{files: map[string]string{"Flu.png": "\x89PNG not a vector"}}
	state := testState(t, "Template:OWID/Flu")
	state.MainFile = "Flu.png"

	stage := &TranslationsStage{deps: testDeps(w)}
	if err := stage.Execute(context.Background(), state); err == nil {
		t.Fatal("expected error for non-svg main file")
	}
}

// --- Nested ---

func TestMatchNestedTags(t *testing.T) {
	cases := []struct {
		name string
		svg  string
		want int
	}{
		{"flat", `<text><tspan>One</tspan><tspan>Two</tspan></text>`, 0},
		{"nested", `<text><tspan>Out<tspan>In</tspan></tspan></text>`, 1},
		{"double", `<text><tspan>A<tspan>B<tspan>C</tspan></tspan></tspan></text>`, 2},
		{"self-closing", `<text><tspan>Out<tspan/></tspan></text>`, 0},
		{"no tspans", sampleWikitext, 0},
	}
	for _, tc := range cases {
		if got := len(MatchNestedTags(tc.svg)); got != tc.want {
			t.Errorf("%s: MatchNestedTags = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestUnwrapNestedTags(t *testing.T) {
	svg := `<text><tspan x="1">Out<tspan dy="2">In</tspan> tail</tspan></text>`

	got := UnwrapNestedTags(svg)

	want := `<text><tspan x="1">OutIn tail</tspan></text>`
	if got != want {
		t.Errorf("UnwrapNestedTags = %q, want %q", got, want)
	}
	if n := len(MatchNestedTags(got)); n != 0 {
		t.Errorf("still %d nested tags after unwrap", n)
	}
}

func TestUnwrapNestedTagsKeepsFlatDocument(t *testing.T) {
	if got := UnwrapNestedTags(sampleSVG); got != sampleSVG {
		t.Error("document without nesting must stay untouched")
	}
}

func TestNestedStageFixesFilesAndCounts(t *testing.T) {
	state := testState(t, "Template:OWID/Flu")

	nestedPath := filepath.Join(state.WorkDir, "Nested.svg")
	nested := `<svg><text><tspan>Out<tspan>In</tspan></tspan></text></svg>`
	if err := os.WriteFile(nestedPath, []byte(nested), 0o644); err != nil {
		t.Fatal(err)
	}
	cleanPath := filepath.Join(state.WorkDir, "Clean.svg")
	if err := os.WriteFile(cleanPath, []byte(sampleSVG), 0o644); err != nil {
		t.Fatal(err)
	}
	state.Files["Nested.svg"] = nestedPath
	state.Files["Clean.svg"] = cleanPath

	stage := &NestedStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if state.NestedFixed != 1 || state.NestedNotFixed != 0 {
		t.Errorf("fixed = %d, not fixed = %d", state.NestedFixed, state.NestedNotFixed)
	}
	raw, err := os.ReadFile(nestedPath)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(MatchNestedTags(string(raw))); n != 0 {
		t.Errorf("file still has %d nested tags", n)
	}
	want := "Files: (2): Nested: 1, Fixed: 1, Not fixed: 0."
	if got := state.Messages[domain.StageNested]; got != want {
		t.Errorf("stage message = %q, want %q", got, want)
	}
}

func TestNestedStageSkipsDeeplyNestedFiles(t *testing.T) {
	state := testState(t, "Template:OWID/Flu")

	// Одиннадцать вложений — выше предела автоисправления.
	var b strings.Builder
	b.WriteString("<svg><text><tspan>")
	for i := 0; i < 11; i++ {
		b.WriteString("<tspan>x")
	}
	for i := 0; i < 11; i++ {
		b.WriteString("</tspan>")
	}
	b.WriteString("</tspan></text></svg>")

	path := filepath.Join(state.WorkDir, "Deep.svg")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	state.Files["Deep.svg"] = path

	stage := &NestedStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if state.NestedFixed != 0 || state.NestedNotFixed != 1 {
		t.Errorf("fixed = %d, not fixed = %d", state.NestedFixed, state.NestedNotFixed)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != b.String() {
		t.Error("file above the fix limit must not be rewritten")
	}
}

func TestNestedStageFindsUnknownRefs(t *testing.T) {
	state := testState(t, "Template:OWID/Flu")
	state.Titles = []string{"Flu.svg", "Known.svg"}

	path := filepath.Join(state.WorkDir, "Flu.svg")
	content := `<svg><image href="Known.svg"/><image href="Inner.svg"/></svg>`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	state.Files["Flu.svg"] = path

	stage := &NestedStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if len(state.NestedFiles) != 1 || state.NestedFiles[0] != "Inner.svg" {
		t.Errorf("nested files = %v, want [Inner.svg]", state.NestedFiles)
	}
}

// --- Inject ---

func TestInjectTranslationsAddsLanguage(t *testing.T) {
	got := InjectTranslations(sampleSVG, "fr", map[string]string{"Hello": "Bonjour"})

	if !strings.Contains(got, `systemLanguage="fr"`) {
		t.Error("french variant not injected")
	}
	if !strings.Contains(got, "Bonjour") {
		t.Error("translated text missing")
	}
	// Fallback и другие языки остаются на месте.
	if !strings.Contains(got, ">Hello<") {
		t.Error("fallback text must survive injection")
	}
	if !strings.Contains(got, `systemLanguage="ar"`) {
		t.Error("existing language must survive injection")
	}
}

func TestInjectTranslationsReplacesExisting(t *testing.T) {
	got := InjectTranslations(sampleSVG, "ar", map[string]string{"Hello": "سلام"})

	if !strings.Contains(got, "سلام") {
		t.Error("new translation missing")
	}
	if strings.Contains(got, "مرحبا") {
		t.Error("old translation should be replaced")
	}
}

func TestInjectTranslationsUnknownFallback(t *testing.T) {
	got := InjectTranslations(sampleSVG, "fr", map[string]string{"Nope": "Rien"})
	if got != sampleSVG {
		t.Error("switch without matching fallback must stay untouched")
	}
}

func TestInjectedFileName(t *testing.T) {
	cases := []struct {
		mainFile string
		lang     string
		want     string
	}{
		{"File:Wound care.svg", "ar", "wound_care (ar).svg"},
		{"Flu.svg", "fr", "flu (fr).svg"},
	}
	for _, tc := range cases {
		if got := injectedFileName(tc.mainFile, tc.lang); got != tc.want {
			t.Errorf("injectedFileName(%q, %q) = %q, want %q", tc.mainFile, tc.lang, got, tc.want)
		}
	}
}

func TestInjectStageWritesFiles(t *testing.T) {
	state := testState(t, "Template:OWID/Flu")
	state.MainText = sampleSVG
	state.MainFile = "Flu.svg"
	state.Translations = map[string]map[string]string{
		"fr": {"Hello": "Bonjour"},
	}

	stage := &InjectStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	path, ok := state.Injected["fr"]
	if !ok {
		t.Fatal("french file not recorded")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read injected file: %v", err)
	}
	if !strings.Contains(string(raw), "Bonjour") {
		t.Error("injected file lacks translation")
	}
}

// --- Upload ---

func TestUploadStageUploadsAllLanguages(t *testing.T) {
	w := &fakeWiki{}
	state := testState(t, "Flu.svg")
	state.Task.Args["csrf_token"] = "tok"

	for _, lang := range []string{"ar", "fr"} {
		path := filepath.Join(state.WorkDir, "flu ("+lang+").svg")
		if err := os.WriteFile(path, []byte(sampleSVG), 0o644); err != nil {
			t.Fatal(err)
		}
		state.Injected[lang] = path
	}

	stage := &UploadStage{deps: testDeps(w)}
	if err := stage.Execute(context.Background(), state); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if len(state.Uploaded) != 2 {
		t.Fatalf("uploaded = %v", state.Uploaded)
	}
	// Языки идут в детерминированном порядке.
	if state.Uploaded[0] != "flu (ar).svg" || state.Uploaded[1] != "flu (fr).svg" {
		t.Errorf("unexpected upload order %v", state.Uploaded)
	}
}

func TestUploadStageFailsOnFirstError(t *testing.T) {
	w := &fakeWiki{uploadErr: errors.New("permission denied")}
	state := testState(t, "Flu.svg")
	state.Injected["ar"] = filepath.Join(state.WorkDir, "x.svg")

	stage := &UploadStage{deps: testDeps(w)}
	if err := stage.Execute(context.Background(), state); err == nil {
		t.Fatal("expected upload error to fail the stage")
	}
}

func TestUploadStageNothingToUpload(t *testing.T) {
	stage := &UploadStage{deps: testDeps(&fakeWiki{})}
	if err := stage.Execute(context.Background(), testState(t, "Flu.svg")); err == nil {
		t.Fatal("expected error when nothing was injected")
	}
}

// --- Registry wiring ---

func TestDefaultRegistryComplete(t *testing.T) {
	registry := DefaultRegistry(testDeps(&fakeWiki{}))
	if err := registry.Complete(); err != nil {
		t.Fatalf("registry incomplete: %v", err)
	}
}
