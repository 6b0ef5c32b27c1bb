// Package claim реализует защиту от повторной обработки job.
//
// Перед любой работой воркер захватывает job descriptor. Захват
// различает три исхода:
//   - Claimed:          захват успешен, job можно обрабатывать
//   - AlreadyClaimed:   job уже захвачен (повторная доставка), no-op
//   - DoubleSubmission: маркер есть, но descriptor снова на месте;
//     front door прислал тот же job дважды, no-op с ошибкой в логе
//
// FileGuard строит захват на атомарном rename в маркер и даёт
// at-most-once на одном узле. RedisGuard делает то же через
// условную запись в общий Redis для нескольких воркеров.
//
// Ни один guard не защищает от падения воркера после захвата:
// такой job остаётся захваченным и требует ручного вмешательства.
package claim
