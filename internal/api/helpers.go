package api

import (
	"net/url"
	"strconv"
	"strings"
)

// pathID 从URL路径的指定段提取数字ID。
// 段下标从0开始计数，例如 /api/v1/drugs/{id} 的 id 在下标4。
func pathID(path string, index int) (int64, bool) {
	parts := strings.Split(path, "/")
	if len(parts) <= index {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[index], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// pagination 解析分页查询参数，越界值回退到默认值
func pagination(query url.Values) (page, pageSize int) {
	page = 1
	pageSize = 20

	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			page = p
		}
	}
	if pageSizeStr := query.Get("page_size"); pageSizeStr != "" {
		if ps, err := strconv.Atoi(pageSizeStr); err == nil && ps > 0 && ps <= 100 {
			pageSize = ps
		}
	}
	return page, pageSize
}
