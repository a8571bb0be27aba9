package utils

// Server-side strings shown to participants. Everything else is translated by the UI.
var translations = map[string]map[string]string{
	"en": {
		"health.ok":              "ok",
		"join.unknown_code":      "This access code is not valid.",
		"stage.not_found":        "This step does not exist.",
		"stage.not_reached":      "You have not reached this step yet.",
		"stage.finished":         "You have completed the experiment.",
		"stage.kind_mismatch":    "This action is not available on the current step.",
		"input.invalid_answer":   "The answer is not valid.",
		"input.invalid_message":  "The message is empty.",
		"server.integrity_error": "Something went wrong. Please contact the experimenter.",
	},
	"zh": {
		"health.ok":              "好的",
		"join.unknown_code":      "访问码无效。",
		"stage.not_found":        "该步骤不存在。",
		"stage.not_reached":      "您尚未到达该步骤。",
		"stage.finished":         "您已完成本实验。",
		"stage.kind_mismatch":    "当前步骤不支持此操作。",
		"input.invalid_answer":   "答案无效。",
		"input.invalid_message":  "消息不能为空。",
		"server.integrity_error": "出现错误，请联系实验人员。",
	},
}

// T returns the translated string for key in locale; falls back to English, then key.
func T(locale, key string) string {
	if v, ok := translations[locale][key]; ok {
		return v
	}
	if v, ok := translations["en"][key]; ok {
		return v
	}
	return key
}
