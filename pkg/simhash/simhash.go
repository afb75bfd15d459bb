package simhash

import (
	"math/bits"
	"strings"
	"sync"
	"unicode"

	"github.com/go-dedup/simhash"
)

// DefaultThreshold 相邻片段汉明距离 <= 该值视为重复
const DefaultThreshold = 3

// textFeature 包装库的 FNV 特征，再做一次 64 位混洗
// 短输入的 FNV-1 只改变少数比特位，不混洗时无关文本的指纹几乎相同
type textFeature struct {
	sum uint64
}

func (f textFeature) Sum() uint64 { return f.sum }
func (f textFeature) Weight() int { return 1 }

func newTextFeature(token string) simhash.Feature {
	return textFeature{sum: mix64(simhash.NewFeature([]byte(token)).Sum())}
}

// mix64 是 splitmix64 的终结函数
func mix64(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}

// isCJK 判断无空格书写系统的字符（汉字、假名、韩文）
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hangul, r) ||
		(r >= 0x3040 && r <= 0x30FF)
}

// textFeatureSet 实现 simhash.FeatureSet
// 拉丁等有空格文本按单词提取特征，CJK 连续字符按 bigram 提取
type textFeatureSet struct {
	text string
}

// GetFeatures 提取文本特征，标点和空白只作为分隔符
func (t textFeatureSet) GetFeatures() []simhash.Feature {
	features := []simhash.Feature{}
	var word, run []rune

	flushWord := func() {
		if len(word) > 0 {
			features = append(features, newTextFeature(string(word)))
			word = word[:0]
		}
	}
	flushRun := func() {
		for i := 0; i+1 < len(run); i++ {
			features = append(features, newTextFeature(string(run[i:i+2])))
		}
		// 短片段补充单字符特征
		if len(run) < 4 {
			for _, r := range run {
				features = append(features, newTextFeature(string(r)))
			}
		}
		run = run[:0]
	}

	for _, r := range t.text {
		r = unicode.ToLower(r)
		switch {
		case isCJK(r):
			flushWord()
			run = append(run, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r):
			flushRun()
			word = append(word, r)
		default:
			flushWord()
			flushRun()
		}
	}
	flushWord()
	flushRun()
	return features
}

// Fingerprint 计算文本的 64 位 SimHash 指纹
func Fingerprint(text string) uint64 {
	return simhash.NewSimhash().GetSimhash(textFeatureSet{text: text})
}

// HammingDistance 计算两个指纹不同位的数量（0-64）
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// RepetitionDetector 检测与上一条非空文本近似重复的文本
// 语音识别引擎在静音或噪声上常输出重复的幻觉句子
type RepetitionDetector struct {
	mu        sync.Mutex
	threshold int
	last      uint64
	hasLast   bool
}

// NewRepetitionDetector 创建检测器，threshold < 0 时使用默认值
func NewRepetitionDetector(threshold int) *RepetitionDetector {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	return &RepetitionDetector{threshold: threshold}
}

// Observe 记录 text 并返回它是否与上一条非空文本近似重复
// 空文本不参与比较，也不会重置上一条记录
func (d *RepetitionDetector) Observe(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	fp := Fingerprint(text)

	d.mu.Lock()
	defer d.mu.Unlock()
	repeated := d.hasLast && HammingDistance(fp, d.last) <= d.threshold
	d.last, d.hasLast = fp, true
	return repeated
}
