package intent

import "regexp"

// phrase is one weighted pattern with a human-readable label used in the
// reasoning string.
type phrase struct {
	label string
	re    *regexp.Regexp
}

type phraseTable struct {
	weight    float64
	positives []phrase
	negatives []phrase
}

func p(label, pattern string) phrase {
	return phrase{label: label, re: regexp.MustCompile(pattern)}
}

// Deny is weighted slightly above approve so ambiguous utterances fail safe.
// The tables are bilingual: the runtime's user base replies in English and
// Turkish interchangeably. Input is lowercased before matching.
var phraseTables = map[Intent]phraseTable{
	IntentApprove: {
		weight: 1.0,
		positives: []phrase{
			p("approve", `\bapproved?\b`),
			p("lgtm", `\blgtm\b`),
			p("looks good", `looks good`),
			p("go ahead", `go ahead`),
			p("proceed", `\bproceed\b`),
			p("ship it", `ship it`),
			p("sounds good", `sounds good`),
			p("yes", `^(yes|yep|yeah|sure)[.! ]*$`),
			p("lets go", `let'?s (go|do it|start|build)`),
			p("green light", `green ?light`),
			p("onayla", `onayl[ıi]yorum|onayla`),
			p("basla", `ba[şs]la(yal[ıi]m)?\b`),
			p("devam", `devam et`),
			p("tamam", `\btamam(d[ıi]r)?\b`),
			p("evet", `\bevet\b`),
			p("uygun", `\buygun(dur)?\b`),
			p("kabul", `\bkabul\b`),
		},
		negatives: []phrase{
			p("dont approve", `(don'?t|do not|won'?t|not going to) approve`),
			p("not approved", `\bnot approved?\b`),
			p("onaylama", `onaylam[ıiay]`),
		},
	},
	IntentRevise: {
		weight: 1.0,
		positives: []phrase{
			p("revise", `\brevis(e|ed|ion)\b`),
			p("rework", `\brework\b`),
			p("change", `\bchange\b`),
			p("modify", `\bmodify\b`),
			p("adjust", `\badjust\b`),
			p("tweak", `\btweak\b`),
			p("redo", `\bredo\b`),
			p("rewrite", `\brewrite\b`),
			p("update the plan", `update (the )?(plan|milestone)`),
			p("instead", `\binstead\b`),
			p("degistir", `de[ğg]i[şs]tir`),
			p("duzelt", `d[üu]zelt`),
			p("revize", `\brevize\b`),
			p("guncelle", `g[üu]ncelle`),
			p("yeniden", `\byeniden\b`),
		},
		negatives: []phrase{
			p("no changes", `\bno change(s)? (needed|required)\b`),
			p("dont change", `(don'?t|do not) change`),
			p("degistirme", `de[ğg]i[şs]tirme\b`),
		},
	},
	IntentAsk: {
		weight: 1.0,
		positives: []phrase{
			p("question mark", `\?`),
			p("why", `\bwhy\b`),
			p("how", `\bhow\b`),
			p("what", `\bwhat\b`),
			p("explain", `\bexplain\b`),
			p("clarify", `\bclarif(y|ication)\b`),
			p("question", `\bquestion\b`),
			p("not sure", `\b(not sure|unsure)\b`),
			p("neden", `\bneden\b`),
			p("nasil", `nas[ıi]l`),
			p("nedir", `\bnedir\b`),
			p("niye", `\bniye\b`),
			p("acikla", `a[çc][ıi]kla`),
			p("soru", `\bsoru(m)?\b`),
		},
	},
	IntentDeny: {
		weight: 1.2,
		positives: []phrase{
			p("no", `^no[.! ]*$|\bno,`),
			p("deny", `\bden(y|ied)\b`),
			p("reject", `\breject(ed)?\b`),
			p("stop", `\bstop\b`),
			p("cancel", `\bcancel\b`),
			p("abort", `\babort\b`),
			p("halt", `\bhalt\b`),
			p("dont", `(don'?t|do not) (do|proceed|continue|start)`),
			p("nope", `\bnope\b`),
			p("never mind", `never ?mind`),
			p("hayir", `hay[ıi]r`),
			p("iptal", `\biptal\b`),
			p("dur", `\bdur\b`),
			p("vazgec", `vazge[çc]`),
			p("reddet", `\breddet\b`),
			p("istemiyorum", `\bistemiyorum\b`),
			p("yapma", `\byapma\b`),
		},
		negatives: []phrase{
			p("no problem", `no (problem|worries|issue)`),
		},
	},
}
