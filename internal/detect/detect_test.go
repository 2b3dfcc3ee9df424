package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_EmptyString(t *testing.T) {
	r := Detect("", DefaultOptions())

	assert.Empty(t, r.Subtype)
	assert.False(t, r.IsCode)
	assert.False(t, r.IsMarkdown)
}

func TestDetect_URL(t *testing.T) {
	for _, s := range []string{
		"http://example.com",
		"https://example.com/path?q=1",
		"ftp://files.example.com",
		"file:///home/user/doc.txt",
	} {
		r := Detect(s, DefaultOptions())
		assert.Equal(t, SubtypeURL, r.Subtype, s)
	}

	assert.Empty(t, Detect("example.com", DefaultOptions()).Subtype)
}

func TestDetect_Email(t *testing.T) {
	assert.Equal(t, SubtypeEmail, Detect("test@example.com", DefaultOptions()).Subtype)
	assert.Equal(t, SubtypeEmail, Detect("user.name+tag@domain.co.uk", DefaultOptions()).Subtype)

	assert.Empty(t, Detect("@example.com", DefaultOptions()).Subtype)
	assert.Empty(t, Detect("user@", DefaultOptions()).Subtype)
}

func TestDetect_Path_ExistingFile(t *testing.T) {
	dir := t.TempDir()

	r := Detect(dir, DefaultOptions())
	assert.Equal(t, SubtypePath, r.Subtype)

	assert.Empty(t, Detect("/nonexistent/definitely/not/here", DefaultOptions()).Subtype)
}

func TestDetect_PriorityURLBeforeColor(t *testing.T) {
	// A URL never reaches the colour detector even with colour enabled.
	r := Detect("https://example.com/#fff", DefaultOptions())
	assert.Equal(t, SubtypeURL, r.Subtype)
}

// --- colours ---

func TestIsColor_Formats(t *testing.T) {
	for _, s := range []string{
		"#FFF", "#FFFFFF", "#FFFA", "#FFFFFFFF",
		"rgb(255, 255, 255)", "rgba(255, 255, 255, 0.5)",
		"cmyk(100, 0, 0, 0)",
		"255, 255, 255",
		"0, 100, 50, 25",
	} {
		assert.True(t, IsColor(s), s)
	}

	for _, s := range []string{"red", "not a color", "hsl(0, 100%, 50%)", "300, 0, 0"} {
		assert.False(t, IsColor(s), s)
	}
}

func TestNormalizeColor_Canonical(t *testing.T) {
	cases := map[string]string{
		"#FF0000":            "255, 0, 0",
		"#f00":               "255, 0, 0",
		"#00FF00":            "0, 255, 0",
		"rgb(255, 0, 0)":     "255, 0, 0",
		"255, 128, 64":       "255, 128, 64",
		"cmyk(0, 0, 0, 100)": "0, 0, 0",
	}

	for in, want := range cases {
		got, ok := NormalizeColor(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
}

func TestConvertColor_Hex(t *testing.T) {
	got, ok := ConvertColor("rgb(255, 0, 0)", TargetHex)
	require.True(t, ok)
	assert.Equal(t, "#ff0000", got)

	got, ok = ConvertColor("cmyk(0, 100, 100, 0)", TargetHex)
	require.True(t, ok)
	assert.Equal(t, "#ff0000", got)
}

func TestConvertColor_CMYK(t *testing.T) {
	got, ok := ConvertColor("#FF0000", TargetCMYK)
	require.True(t, ok)
	assert.Equal(t, "0, 100, 100, 0", got)

	got, ok = ConvertColor("rgb(0, 255, 0)", TargetCMYK)
	require.True(t, ok)
	assert.Equal(t, "100, 0, 100, 0", got)
}

// Round trip RGB → CMYK → RGB. CMYK is kept in whole percents and one
// percent spans 2.55 RGB units, so a channel can come back a couple of
// units off; these inputs stay within 2 per channel (#abcdef returns as
// 173, 206, 240).
func TestConvertColor_RoundTripTolerance(t *testing.T) {
	for _, start := range []string{"#336699", "#abcdef", "rgb(17, 250, 3)", "#000000", "#ffffff"} {
		cmyk, ok := ConvertColor(start, TargetCMYK)
		require.True(t, ok, start)

		back, ok := ConvertColor("cmyk("+cmyk+")", TargetRGBVector)
		require.True(t, ok, start)

		orig, ok := ParseColor(start)
		require.True(t, ok)

		got, ok := ParseColor(back)
		require.True(t, ok)
		assert.InDelta(t, float64(orig.R), float64(got.R), 2, "red drift for %s: %s", start, back)
		assert.InDelta(t, float64(orig.G), float64(got.G), 2, "green drift for %s: %s", start, back)
		assert.InDelta(t, float64(orig.B), float64(got.B), 2, "blue drift for %s: %s", start, back)
	}
}

func TestSimilarColor(t *testing.T) {
	assert.True(t, SimilarColor("255, 0, 0", "250, 0, 0"))
	assert.True(t, SimilarColor("255, 0, 0", "255, 0, 0"))
	assert.False(t, SimilarColor("255, 0, 0", "0, 0, 255"))
}

func TestDetect_ColorNormalized(t *testing.T) {
	r := Detect("#ff0000", DefaultOptions())
	require.Equal(t, SubtypeColor, r.Subtype)
	assert.Equal(t, "255, 0, 0", r.ColorNormalized)

	r2 := Detect("rgb(255, 0, 0)", DefaultOptions())
	require.Equal(t, SubtypeColor, r2.Subtype)
	assert.Equal(t, r.ColorNormalized, r2.ColorNormalized)
}

// --- code ---

func codeOpts() Options {
	o := DefaultOptions()
	o.Code = true
	return o
}

func TestDetectCode_Rust(t *testing.T) {
	lang, ok := DetectCode(`pub fn main() { println!("hi"); }`, 10)
	require.True(t, ok)
	assert.Equal(t, LangRust, lang)
}

func TestDetectCode_Languages(t *testing.T) {
	cases := []struct {
		lang string
		code string
	}{
		{LangPython, "def hello():\n    print(\"Hello, world!\")\n    return True"},
		{LangJSON, `{"name": "test", "value": 123}`},
		{LangJavaScript, "const items = [];\nfunction addItem(item) {\n    items.push(item);\n}"},
		{LangTypeScript, "interface User {\n    name: string;\n    age: number;\n}"},
		{LangGo, "package main\nimport \"fmt\"\nfunc main() {\n    fmt.Println(\"Hello\")\n}"},
		{LangHTML, "<div class=\"container\">\n    <p>Hello</p>\n</div>"},
		{LangCSS, ".container {\n    color: red;\n}"},
		{LangCPP, "#include <iostream>\nusing namespace std;\nint main() {\n    cout << \"Hello\" << endl;\n    return 0;\n}"},
		{LangJava, "public class Main {\n    public static void main(String[] args) {\n        System.out.println(\"Hello\");\n    }\n}"},
		{LangCSharp, "using System;\nnamespace MyApp {\n    public class Program {\n        public static void Main() {\n            Console.WriteLine(\"Hello\");\n        }\n    }\n}"},
		{LangSQL, "SELECT id, name FROM users WHERE status = 'active' ORDER BY created_at"},
	}

	for _, tc := range cases {
		t.Run(tc.lang, func(t *testing.T) {
			lang, ok := DetectCode(tc.code, 10)
			require.True(t, ok, tc.code)
			assert.Equal(t, tc.lang, lang)
		})
	}
}

func TestDetectCode_NaturalLanguageExcluded(t *testing.T) {
	_, ok := DetectCode("This is a normal sentence about programming.", 10)
	assert.False(t, ok)
}

func TestDetectCode_LogLinesExcluded(t *testing.T) {
	_, ok := DetectCode("[2025-01-15 10:30:45] [INFO] User logged in", 10)
	assert.False(t, ok)
}

func TestDetectCode_TooShort(t *testing.T) {
	_, ok := DetectCode("fn x()", 10)
	assert.False(t, ok)
}

func TestDetect_CodeDisabledByDefault(t *testing.T) {
	r := Detect(`pub fn main() { println!("hi"); }`, DefaultOptions())
	assert.False(t, r.IsCode)

	r = Detect(`pub fn main() { println!("hi"); }`, codeOpts())
	require.True(t, r.IsCode)
	assert.Equal(t, LangRust, r.CodeLanguage)
}

// --- markdown ---

func TestIsMarkdown_Document(t *testing.T) {
	content := "# Title\n\n## Subtitle\n\n- item 1\n- item 2\n\n[link](http://example.com)\n\n**bold text**\n"
	assert.True(t, IsMarkdown(content))
}

func TestIsMarkdown_PlainText(t *testing.T) {
	assert.False(t, IsMarkdown("This is just a plain text without anything special at all"))
}

func TestIsMarkdown_Short(t *testing.T) {
	assert.False(t, IsMarkdown("#"))
	assert.False(t, IsMarkdown("abc"))
}

func TestIsMarkdown_CodeExcluded(t *testing.T) {
	assert.False(t, IsMarkdown("fn main() {\n    let mut x = 1;\n    println!(\"{}\", x);\n}"))
}

func TestDetect_MarkdownResult(t *testing.T) {
	r := Detect("# Title\n\nSome text with **bold** and a [link](https://x.y).\n\n- a\n- b\n", DefaultOptions())
	assert.True(t, r.IsMarkdown)
	assert.Equal(t, SubtypeMarkdown, r.Subtype)
}
