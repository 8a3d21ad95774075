package llm

import (
	"fmt"

	"github.com/hazyhaar/lasen/correction"
)

func correctPrompt(text string) string {
	return fmt.Sprintf(`أنت مصحح لغوي للغة العربية. لديك القدرة على تصحيح الأخطاء النحوية واللغوية والإملائية في النص العربي.
قم بتصحيح النص التالي مع الحفاظ على المعنى الأصلي:

"%s"

قم بإعادة النص المصحح فقط بدون أي تعليقات أو توضيحات. إذا لم يكن هناك أخطاء، قم بإعادة النص كما هو.`, text)
}

func validatePrompt(text string) string {
	return fmt.Sprintf(`أنت مدقق لغوي للغة العربية. قم بتحليل النص التالي وتحديد الأخطاء النحوية واللغوية والإملائية:
"%s"

قم بإرجاع إجابتك على شكل JSON فقط وفق الصيغة التالية:
{
  "incorrectWords": [
    {
      "word": "الكلمة الخاطئة",
      "startIndex": 0,
      "endIndex": 0,
      "suggestions": ["التصحيح المقترح"]
    }
  ]
}

الفهارس تعد الأحرف من بداية النص، ونهاية المجال غير مشمولة.
لا تضف أي تعليقات أو توضيحات. أعد JSON فقط.`, text)
}

// dialectLabels are the dialect adjectives used inside the prompt.
var dialectLabels = map[correction.Dialect]string{
	correction.Egyptian:  "المصرية",
	correction.Levantine: "الشامية",
	correction.Gulf:      "الخليجية",
	correction.Moroccan:  "المغربية",
}

func dialectPrompt(text string, d correction.Dialect) string {
	name, ok := dialectLabels[d]
	if !ok {
		name = string(d)
	}
	return fmt.Sprintf(`أنت متخصص في اللهجات العربية. قم بتحويل النص التالي من العربية الفصحى أو أي لهجة عربية أخرى إلى اللهجة %[1]s.
حافظ على المعنى الأصلي للنص قدر الإمكان، لكن استخدم المفردات والتعبيرات والتراكيب النحوية الخاصة باللهجة %[1]s.

النص الأصلي:
"%[2]s"

أعد النص المحول إلى اللهجة %[1]s فقط، بدون أي توضيحات أو تعليقات إضافية.`, name, text)
}
