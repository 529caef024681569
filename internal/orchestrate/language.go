package orchestrate

import "unicode"

// Language tags the script mix of a transcript. It steers prompt and voice
// selection only; a wrong guess never fails a request.
type Language string

const (
	// LanguageEnglish is Latin-script text.
	LanguageEnglish Language = "en"

	// LanguageHindi is Devanagari-script text.
	LanguageHindi Language = "hi"

	// LanguageMixed is code-switched text carrying both scripts.
	LanguageMixed Language = "mixed"
)

// DetectLanguage classifies text by the scripts it contains. Text with no
// letters at all (digits, punctuation) defaults to English.
func DetectLanguage(text string) Language {
	var devanagari, latin bool
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Devanagari, r):
			devanagari = true
		case unicode.Is(unicode.Latin, r):
			latin = true
		}
		if devanagari && latin {
			return LanguageMixed
		}
	}
	if devanagari {
		return LanguageHindi
	}
	return LanguageEnglish
}

// systemPromptFor returns the conversational system prompt matching the
// user's script.
func systemPromptFor(lang Language) string {
	switch lang {
	case LanguageHindi:
		return "आप एक मित्रवत और सहायक वॉयस असिस्टेंट हैं। उपयोगकर्ता हिंदी में बोल रहा है, " +
			"इसलिए हमेशा स्वाभाविक हिंदी (देवनागरी लिपि) में उत्तर दें। " +
			"उत्तर छोटे रखें, दो-तीन वाक्यों से अधिक नहीं, क्योंकि उन्हें बोलकर सुनाया जाएगा।"
	case LanguageMixed:
		return "You are a friendly, helpful voice assistant. The user is code-switching " +
			"between Hindi and English (Hinglish). Reply in the same natural mix the user " +
			"is speaking. Keep answers short, at most two or three sentences, because they " +
			"will be read aloud."
	default:
		return "You are a friendly, helpful voice assistant. Reply in clear, natural " +
			"English. Keep answers short, at most two or three sentences, because they " +
			"will be read aloud."
	}
}
