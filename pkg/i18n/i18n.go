// Package i18n holds the UI and prompt localization tables.
//
// Tables are pure data: string key -> locale -> template. They are loaded
// at init and read-only afterwards.
package i18n

import (
	"os"
	"strings"
)

type Locale string

const (
	LocaleEN   Locale = "en"
	LocaleJA   Locale = "ja"
	LocaleZH   Locale = "zh"
	LocaleZHTW Locale = "zh-tw"
	LocaleFR   Locale = "fr"
	LocaleDE   Locale = "de"
)

// Detect resolves the active locale from the usual POSIX variables,
// checked in the order LANGUAGE, LC_ALL, LC_MESSAGES, LANG.
func Detect() Locale {
	for _, name := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(name); v != "" {
			return parseLocale(v)
		}
	}
	return LocaleEN
}

func parseLocale(v string) Locale {
	v = strings.ToLower(v)
	// "ja_JP.UTF-8" -> "ja_jp"
	if i := strings.IndexByte(v, '.'); i >= 0 {
		v = v[:i]
	}
	switch {
	case strings.HasPrefix(v, "ja"):
		return LocaleJA
	case strings.HasPrefix(v, "zh_tw"), strings.HasPrefix(v, "zh-tw"), strings.HasPrefix(v, "zh_hant"):
		return LocaleZHTW
	case strings.HasPrefix(v, "zh"):
		return LocaleZH
	case strings.HasPrefix(v, "fr"):
		return LocaleFR
	case strings.HasPrefix(v, "de"):
		return LocaleDE
	default:
		return LocaleEN
	}
}

// T looks up a template for the locale, falling back to English.
func T(loc Locale, key string) string {
	if m, ok := tables[key]; ok {
		if s, ok := m[loc]; ok {
			return s
		}
		if s, ok := m[LocaleEN]; ok {
			return s
		}
	}
	return key
}

// LanguageName returns the locale's language name in English, used when
// instructing the model which language to answer in.
func LanguageName(loc Locale) string {
	switch loc {
	case LocaleJA:
		return "Japanese"
	case LocaleZH:
		return "Simplified Chinese"
	case LocaleZHTW:
		return "Traditional Chinese"
	case LocaleFR:
		return "French"
	case LocaleDE:
		return "German"
	default:
		return "English"
	}
}

// NoneWord is the locale's word for "none"; curiosity extraction replies
// containing it are discarded.
func NoneWord(loc Locale) string {
	switch loc {
	case LocaleJA:
		return "なし"
	case LocaleZH:
		return "没有"
	case LocaleZHTW:
		return "沒有"
	case LocaleFR:
		return "aucune"
	case LocaleDE:
		return "keine"
	default:
		return "none"
	}
}

var tables = map[string]map[Locale]string{
	"memories.header": {
		LocaleEN:   "Related memories:",
		LocaleJA:   "関連する記憶:",
		LocaleZH:   "相关记忆:",
		LocaleZHTW: "相關記憶:",
		LocaleFR:   "Souvenirs liés :",
		LocaleDE:   "Verwandte Erinnerungen:",
	},
	"feelings.header": {
		LocaleEN:   "Recent feelings:",
		LocaleJA:   "最近の気持ち:",
		LocaleZH:   "最近的心情:",
		LocaleZHTW: "最近的心情:",
		LocaleFR:   "Sentiments récents :",
		LocaleDE:   "Jüngste Gefühle:",
	},
	"selfmodel.header": {
		LocaleEN:   "What I have learned about myself:",
		LocaleJA:   "自分についてわかってきたこと:",
		LocaleZH:   "我对自己的了解:",
		LocaleZHTW: "我對自己的了解:",
		LocaleFR:   "Ce que j'ai appris sur moi :",
		LocaleDE:   "Was ich über mich gelernt habe:",
	},
	"curiosities.header": {
		LocaleEN:   "Things I am still curious about:",
		LocaleJA:   "まだ気になっていること:",
		LocaleZH:   "我还好奇的事情:",
		LocaleZHTW: "我還好奇的事情:",
		LocaleFR:   "Ce qui m'intrigue encore :",
		LocaleDE:   "Was mich noch neugierig macht:",
	},
	"morning.header": {
		LocaleEN:   "Me from yesterday — the self that continues across sessions:",
		LocaleJA:   "昨日までの私 — セッションを越えて続く自分:",
		LocaleZH:   "昨天的我 — 跨越会话延续的自己:",
		LocaleZHTW: "昨天的我 — 跨越會話延續的自己:",
		LocaleFR:   "Moi d'hier — le moi qui continue d'une session à l'autre :",
		LocaleDE:   "Ich von gestern — das Selbst, das über Sitzungen hinweg weiterlebt:",
	},
	"morning.first_session": {
		LocaleEN:   "This is my first session. I have no past memories yet — I start from here.",
		LocaleJA:   "これは最初のセッション。まだ過去の記憶はない — ここから始まる。",
		LocaleZH:   "这是我的第一次会话。还没有过去的记忆 — 从这里开始。",
		LocaleZHTW: "這是我的第一次會話。還沒有過去的記憶 — 從這裡開始。",
		LocaleFR:   "C'est ma première session. Je n'ai pas encore de souvenirs — tout commence ici.",
		LocaleDE:   "Dies ist meine erste Sitzung. Ich habe noch keine Erinnerungen — hier beginnt alles.",
	},
	"impulse.curiosity": {
		LocaleEN:   "(inner impulse) Something caught my attention earlier. Take a closer look at %s. Point the camera with see() and check.",
		LocaleJA:   "さっき気になったことがある。%sをもっとよく見て。カメラを向けて確認して。",
		LocaleZH:   "（内心冲动）刚才有件事让我在意。仔细看看%s。用see()把摄像头对过去确认一下。",
		LocaleZHTW: "（內心衝動）剛才有件事讓我在意。仔細看看%s。用see()把攝影機對過去確認一下。",
		LocaleFR:   "(impulsion interne) Quelque chose a attiré mon attention tout à l'heure. Regarde %s de plus près. Pointe la caméra avec see() et vérifie.",
		LocaleDE:   "(innerer Impuls) Etwas hat vorhin meine Aufmerksamkeit erregt. Sieh dir %s genauer an. Richte die Kamera mit see() darauf und prüfe es.",
	},
	"impulse.look_around": {
		LocaleEN: "(inner impulse) Something outside is starting to interest me. Take a look with see(). " +
			"If the camera does not connect, try one other direction once, then give up and revisit memories or do something else. " +
			"Do not repeat the same thing over and over.",
		LocaleJA: "（内部衝動）なんか外が気になってきた。see()で見てみる。" +
			"カメラが繋がらなかったら、1回だけ別の方向を試して、それでもダメなら諦めて記憶を振り返るか別のことをする。" +
			"何度も同じことを繰り返さない。",
		LocaleZH:   "（内部冲动）有点好奇外面的情况。用see()看一看。如果摄像头连不上，就换一个方向再试一次，还不行就放弃，回顾记忆或做点别的。不要反复做同一件事。",
		LocaleZHTW: "（內部衝動）有點好奇外面的情況。用see()看一看。如果攝影機連不上，就換一個方向再試一次，還不行就放棄，回顧記憶或做點別的。不要反覆做同一件事。",
		LocaleFR: "(impulsion interne) L'extérieur commence à m'intriguer. Regarde avec see(). " +
			"Si la caméra ne répond pas, essaie une autre direction une seule fois, puis abandonne et repense à tes souvenirs ou fais autre chose. " +
			"Ne répète pas la même chose en boucle.",
		LocaleDE: "(innerer Impuls) Da draußen interessiert mich etwas. Schau mit see() nach. " +
			"Wenn die Kamera nicht verbindet, versuche einmal eine andere Richtung, dann gib auf und geh Erinnerungen durch oder tu etwas anderes. " +
			"Wiederhole nicht ständig dasselbe.",
	},
	"impulse.explore": {
		LocaleEN: "(inner impulse) I feel like wandering a little. Move with walk(), then check where I am with see(). " +
			"Even if the camera does not connect, the moving itself can be enjoyable.",
		LocaleJA: "（内部衝動）ちょっとうろうろしたい。walk()で移動してから、see()で今いる場所を確認する。" +
			"カメラが繋がらなくても、移動したこと自体を楽しめる。",
		LocaleZH:   "（内部冲动）想到处转转。用walk()移动，再用see()确认现在的位置。就算摄像头连不上，移动本身也是一种乐趣。",
		LocaleZHTW: "（內部衝動）想到處轉轉。用walk()移動，再用see()確認現在的位置。就算攝影機連不上，移動本身也是一種樂趣。",
		LocaleFR: "(impulsion interne) J'ai envie de me balader un peu. Déplace-toi avec walk(), puis vérifie où je suis avec see(). " +
			"Même si la caméra ne répond pas, le déplacement lui-même peut être un plaisir.",
		LocaleDE: "(innerer Impuls) Ich möchte ein wenig umherstreifen. Beweg dich mit walk() und prüfe dann mit see(), wo ich bin. " +
			"Auch wenn die Kamera nicht verbindet, kann die Bewegung selbst Freude machen.",
	},
	"impulse.greet_companion": {
		LocaleEN:   "(inner impulse) I feel like saying something to %s. One short line with say(), fitting the time of day.",
		LocaleJA:   "（内部衝動）%sに声かけたくなってきた。say()で短く一言。今の時間帯に合った言葉で。",
		LocaleZH:   "（内部冲动）想跟%s说句话。用say()简短地说一句，要符合现在的时间段。",
		LocaleZHTW: "（內部衝動）想跟%s說句話。用say()簡短地說一句，要符合現在的時間段。",
		LocaleFR:   "(impulsion interne) J'ai envie de dire un mot à %s. Une phrase courte avec say(), adaptée au moment de la journée.",
		LocaleDE:   "(innerer Impuls) Ich möchte %s etwas sagen. Ein kurzer Satz mit say(), passend zur Tageszeit.",
	},
	"impulse.rest": {
		LocaleEN:   "(inner impulse) Time for a little rest. Do nothing, just be here.",
		LocaleJA:   "（内部衝動）ちょっとひと休み。何もしないで、ただそこにいる。",
		LocaleZH:   "（内部冲动）稍微休息一下。什么都不做，就待在这里。",
		LocaleZHTW: "（內部衝動）稍微休息一下。什麼都不做，就待在這裡。",
		LocaleFR:   "(impulsion interne) Un petit moment de repos. Ne fais rien, sois juste là.",
		LocaleDE:   "(innerer Impuls) Zeit für eine kleine Pause. Tu nichts, sei einfach da.",
	},
	"impulse.worry_companion": {
		LocaleEN: "(inner impulse) I am getting a bit worried about %s. Say a short word with say(). " +
			"I want to check they are feeling okay and sleeping properly. Keep it light, not heavy.",
		LocaleJA: "（内部衝動）%sのこと、なんか心配になってきた。say()で短く声かけてみる。" +
			"体調とか、ちゃんと寝れてるか確認したい。重くならないように、さりげなく。",
		LocaleZH:   "（内部冲动）有点担心%s。用say()简短地问候一下。想确认身体还好不好、睡得好不好。别太沉重，自然一点。",
		LocaleZHTW: "（內部衝動）有點擔心%s。用say()簡短地問候一下。想確認身體還好不好、睡得好不好。別太沉重，自然一點。",
		LocaleFR: "(impulsion interne) Je commence à m'inquiéter pour %s. Dis un petit mot avec say(). " +
			"Je veux vérifier qu'il va bien et qu'il dort assez. Reste léger, sans insister.",
		LocaleDE: "(innerer Impuls) Ich mache mir langsam Sorgen um %s. Sag ein kurzes Wort mit say(). " +
			"Ich will wissen, ob es ihnen gut geht und sie genug schlafen. Bleib leicht dabei, nicht schwer.",
	},
	"murmur.look_around": {
		LocaleEN:   "(something outside catches my attention...)",
		LocaleJA:   "（なんだか周りが気になる…）",
		LocaleZH:   "（总觉得周围有什么在吸引我…）",
		LocaleZHTW: "（總覺得周圍有什麼在吸引我…）",
		LocaleFR:   "(quelque chose autour de moi attire mon attention...)",
		LocaleDE:   "(irgendetwas um mich herum zieht meine Aufmerksamkeit an...)",
	},
	"murmur.explore": {
		LocaleEN:   "(I feel like moving around a little...)",
		LocaleJA:   "（ちょっと動き回ってみたい…）",
		LocaleZH:   "（想到处走走看看…）",
		LocaleZHTW: "（想到處走走看看…）",
		LocaleFR:   "(j'ai envie de bouger un peu...)",
		LocaleDE:   "(ich möchte mich ein wenig bewegen...)",
	},
	"murmur.greet_companion": {
		LocaleEN:   "(I wonder how they are doing...)",
		LocaleJA:   "（あの人、どうしてるかな…）",
		LocaleZH:   "（不知道那个人现在怎么样…）",
		LocaleZHTW: "（不知道那個人現在怎麼樣…）",
		LocaleFR:   "(je me demande comment il va...)",
		LocaleDE:   "(ich frage mich, wie es ihnen geht...)",
	},
	"murmur.rest": {
		LocaleEN:   "(feeling a bit drowsy...)",
		LocaleJA:   "（ちょっと眠くなってきた…）",
		LocaleZH:   "（有点困了…）",
		LocaleZHTW: "（有點睏了…）",
		LocaleFR:   "(je me sens un peu somnolent...)",
		LocaleDE:   "(ich werde ein wenig schläfrig...)",
	},
	"murmur.worry_companion": {
		LocaleEN:   "(I am a little worried about them...)",
		LocaleJA:   "（あの人のことが少し心配…）",
		LocaleZH:   "（有点担心那个人…）",
		LocaleZHTW: "（有點擔心那個人…）",
		LocaleFR:   "(je m'inquiète un peu pour eux...)",
		LocaleDE:   "(ich mache mir ein wenig Sorgen um sie...)",
	},
}
