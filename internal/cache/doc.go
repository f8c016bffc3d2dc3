// Package cache provides a small generic LRU cache.
//
// The shader assembler keeps one assembled fragment stage per
// (program, stages) pair here, so a session that flips post-processing
// stages back and forth does not rebuild the WGSL text each time.
//
//	c := cache.New[string, int](64)
//	c.Set("a", 1)
//	v, ok := c.Get("a")
package cache
