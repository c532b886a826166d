package languages

import "strings"

// LanguageMap contains mappings from Matroska track language codes to
// display names. Matroska carries ISO 639-2 bibliographic codes; the
// two-letter entries cover the IETF-style tags some muxers emit instead.
var LanguageMap = map[string]string{
	// Major World Languages
	"ara": "Arabic",
	"chi": "Chinese",
	"zho": "Chinese",
	"eng": "English",
	"fre": "French",
	"fra": "French",
	"ger": "German",
	"deu": "German",
	"hin": "Hindi",
	"ita": "Italian",
	"jpn": "Japanese",
	"kor": "Korean",
	"por": "Portuguese",
	"rus": "Russian",
	"spa": "Spanish",

	// European Languages
	"alb": "Albanian",
	"baq": "Basque",
	"bel": "Belarusian",
	"bos": "Bosnian",
	"bul": "Bulgarian",
	"cat": "Catalan",
	"hrv": "Croatian",
	"cze": "Czech",
	"ces": "Czech",
	"dan": "Danish",
	"dut": "Dutch",
	"nld": "Dutch",
	"est": "Estonian",
	"fin": "Finnish",
	"glg": "Galician",
	"geo": "Georgian",
	"gre": "Greek",
	"ell": "Greek",
	"hun": "Hungarian",
	"ice": "Icelandic",
	"isl": "Icelandic",
	"gle": "Irish",
	"lav": "Latvian",
	"lit": "Lithuanian",
	"ltz": "Luxembourgish",
	"mac": "Macedonian",
	"mlt": "Maltese",
	"nor": "Norwegian",
	"nob": "Norwegian Bokmal",
	"nno": "Norwegian Nynorsk",
	"pol": "Polish",
	"rum": "Romanian",
	"ron": "Romanian",
	"srp": "Serbian",
	"slo": "Slovak",
	"slk": "Slovak",
	"slv": "Slovenian",
	"swe": "Swedish",
	"ukr": "Ukrainian",
	"wel": "Welsh",
	"cym": "Welsh",

	// Middle Eastern & African Languages
	"afr": "Afrikaans",
	"amh": "Amharic",
	"arm": "Armenian",
	"hye": "Armenian",
	"aze": "Azerbaijani",
	"per": "Persian",
	"fas": "Persian",
	"heb": "Hebrew",
	"kur": "Kurdish",
	"pus": "Pashto",
	"som": "Somali",
	"swa": "Swahili",
	"zul": "Zulu",

	// Asian Languages
	"ben": "Bengali",
	"bur": "Burmese",
	"mya": "Burmese",
	"khm": "Khmer",
	"guj": "Gujarati",
	"ind": "Indonesian",
	"kan": "Kannada",
	"lao": "Lao",
	"mal": "Malayalam",
	"may": "Malay",
	"msa": "Malay",
	"mar": "Marathi",
	"mon": "Mongolian",
	"nep": "Nepali",
	"ori": "Odia",
	"pan": "Punjabi",
	"sin": "Sinhala",
	"tam": "Tamil",
	"tel": "Telugu",
	"tha": "Thai",
	"tib": "Tibetan",
	"bod": "Tibetan",
	"urd": "Urdu",
	"vie": "Vietnamese",

	// Pacific Languages
	"fil": "Filipino",
	"tgl": "Tagalog",
	"mao": "Maori",
	"mri": "Maori",

	// Constructed Languages
	"epo": "Esperanto",
	"lat": "Latin",

	// Special values
	"und": "Undetermined",
	"mul": "Multiple",
	"mis": "Miscellaneous",
	"zxx": "No linguistic content",

	// Two-letter tags seen in the wild
	"ar": "Arabic",
	"zh": "Chinese",
	"en": "English",
	"fr": "French",
	"de": "German",
	"hi": "Hindi",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"pt": "Portuguese",
	"ru": "Russian",
	"es": "Spanish",
}

// GetLanguageName returns the display name for the given track language code.
// Returns the name and true if found, empty string and false otherwise.
func GetLanguageName(code string) (string, bool) {
	name, exists := LanguageMap[normalize(code)]
	return name, exists
}

// Matches reports whether a track language code and a user query name the
// same language. The query may be a code or a display name.
func Matches(trackLanguage, query string) bool {
	trackLanguage = normalize(trackLanguage)
	query = normalize(query)
	if trackLanguage == query {
		return true
	}

	trackName, okTrack := LanguageMap[trackLanguage]
	queryName, okQuery := LanguageMap[query]
	if okTrack && okQuery {
		return trackName == queryName
	}
	if okTrack {
		return strings.EqualFold(trackName, query)
	}
	if okQuery {
		return strings.EqualFold(queryName, trackLanguage)
	}
	return false
}

// normalize lowercases a tag and strips any region subtag.
func normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if idx := strings.IndexByte(tag, '-'); idx > 0 {
		tag = tag[:idx]
	}
	return tag
}
