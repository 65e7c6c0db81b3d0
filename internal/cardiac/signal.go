package cardiac

import "math"

// sampleRing 原始采样环形缓冲区
type sampleRing struct {
	data  []int
	head  int // 下一个写入位置
	count int
}

func newSampleRing(size int) *sampleRing {
	if size < 1 {
		size = 1
	}
	return &sampleRing{data: make([]int, size)}
}

func (r *sampleRing) push(v int) {
	r.data[r.head] = v
	r.head = (r.head + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// recent 返回倒数第 i 个采样（i=0 为最新）
func (r *sampleRing) recent(i int) int {
	idx := (r.head - 1 - i + 2*len(r.data)) % len(r.data)
	return r.data[idx]
}

// mean 最近 n 个采样的均值，不足 n 个时取全部
func (r *sampleRing) mean(n int) float64 {
	if n > r.count {
		n = r.count
	}
	if n == 0 {
		return 0
	}
	sum := 0
	for i := 0; i < n; i++ {
		sum += r.recent(i)
	}
	return float64(sum) / float64(n)
}

// stdDev 最近 n 个采样的标准差；采样不足 n 个时返回 ok=false
func (r *sampleRing) stdDev(n int) (float64, bool) {
	if n < 2 || r.count < n {
		return 0, false
	}
	m := r.mean(n)
	var ss float64
	for i := 0; i < n; i++ {
		d := float64(r.recent(i)) - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n)), true
}
