package presence

import "hash/fnv"

// palette набор цветов курсоров. Цвет - чистая функция от userId,
// поэтому стабилен между reconnect (требование протокола). Два
// пользователя могут получить один цвет при коллизии хеша, палитра
// подобрана так, чтобы это было редкостью.
var palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#46f0f0", "#f032e6",
	"#bcf60c", "#fabebe", "#008080", "#e6beff",
	"#9a6324", "#800000", "#aaffc3", "#808000",
}

// ColorFor возвращает детерминированный цвет курсора для пользователя
func ColorFor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return palette[h.Sum32()%uint32(len(palette))]
}
