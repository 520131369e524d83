// Package repo содержит репозитории для доступа к данным задач
// и стадий. SQL пишется руками поверх исполнителя из internal/db;
// Store объединяет репозитории в единый фасад для вызывающего кода.
package repo
